package index

import (
	"log/slog"
	"time"

	"github.com/starford/encyclopedia/internal/parser"
	"github.com/starford/encyclopedia/internal/storage"
)

// Sync brings the index up to date with the entry store:
//   - new/changed entries are parsed and upserted
//   - entries removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List()
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Title] = struct{}{}

		if checksums[m.Title] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Title)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("title", m.Title), slog.String("error", err.Error()))
			continue
		}
		if err := IndexEntry(db, m.Title, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("title", m.Title), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("title", m.Title))
		}
	}

	for title := range checksums {
		if _, ok := disk[title]; ok {
			continue
		}
		if err := db.DeleteEntry(title); err != nil {
			logger.Warn("sync: delete failed", slog.String("title", title), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("title", title))
		}
	}

	return nil
}

// IndexEntry parses data and upserts it into the index.
func IndexEntry(db EntryIndex, title string, data []byte, updatedAt time.Time) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return db.UpsertEntry(EntryRow{
		Title:     title,
		Heading:   res.Heading,
		Checksum:  storage.Checksum(data),
		UpdatedAt: updatedAt,
	}, res.Body, res.Links)
}
