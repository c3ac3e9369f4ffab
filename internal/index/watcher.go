package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/encyclopedia/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, title string)

// Watch starts an fsnotify watcher on the entries directory and keeps the
// index in step with files edited outside the application until ctx is
// cancelled. cb (if non-nil) runs after each successful index mutation.
//
// Renames delete the old title immediately and schedule a debounced
// reconciliation pass to pick up the new name.
func Watch(ctx context.Context, db *DB, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	notify := func(kind, title string) {
		if cb != nil {
			cb(kind, title)
		}
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, store, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			title, isEntry := storage.TitleFromFile(ev.Name)
			if !isEntry {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(title)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("title", title), slog.String("error", readErr.Error()))
					continue
				}
				prev, _ := db.GetChecksum(title)
				if prev == storage.Checksum(data) {
					continue
				}
				if idxErr := IndexEntry(db, title, data, time.Now()); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("title", title), slog.String("error", idxErr.Error()))
					continue
				}
				kind := EventUpdated
				if prev == "" {
					kind = EventCreated
				}
				logger.Debug("watcher: indexed", slog.String("title", title), slog.String("op", kind))
				notify(kind, title)

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeleteEntry(title); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("title", title), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("title", title))
				notify(EventDeleted, title)

			case ev.Op&fsnotify.Rename != 0:
				if delErr := db.DeleteEntry(title); delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("title", title), slog.String("error", delErr.Error()))
				} else {
					notify(EventDeleted, title)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile removes index rows without a file and indexes files whose
// checksum differs from the index.
func reconcile(db *DB, store storage.Provider, logger *slog.Logger, notify func(kind, title string)) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := store.List()
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Title] = m.Checksum
	}

	for title := range checksums {
		if _, ok := disk[title]; ok {
			continue
		}
		if delErr := db.DeleteEntry(title); delErr == nil {
			logger.Debug("reconcile: removed stale", slog.String("title", title))
			notify(EventDeleted, title)
		}
	}

	for title, cs := range disk {
		prev, indexed := checksums[title]
		if prev == cs {
			continue
		}
		data, readErr := store.Read(title)
		if readErr != nil {
			continue
		}
		if idxErr := IndexEntry(db, title, data, time.Now()); idxErr == nil {
			kind := EventUpdated
			if !indexed {
				kind = EventCreated
			}
			logger.Debug("reconcile: indexed", slog.String("title", title))
			notify(kind, title)
		}
	}
}
