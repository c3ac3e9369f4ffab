package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultLimit = 20

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EntryRow represents a row in the entries table.
type EntryRow struct {
	Title     string
	Heading   string
	Checksum  string
	UpdatedAt time.Time
}

// UpsertEntry inserts or replaces an entry, its FTS row, and its links within a transaction.
func (db *DB) UpsertEntry(e EntryRow, body string, links []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO entries (title, heading, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			heading    = excluded.heading,
			checksum   = excluded.checksum,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, e.Title, e.Heading, e.Checksum, body, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert entry: %w", err)
	}

	if err := ftsUpsert(tx, e.Title, body); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, e.Title); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(e.Title, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteEntry removes an entry, its FTS row, and outgoing links.
func (db *DB) DeleteEntry(title string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, title); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, title); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entries WHERE title = ?`, title); err != nil {
		return fmt.Errorf("index: delete entry: %w", err)
	}

	return tx.Commit()
}

// GetChecksum returns the stored checksum for an entry, or empty string if it is not indexed.
func (db *DB) GetChecksum(title string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM entries WHERE title = ?`, title).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns title → checksum for every indexed entry.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT title, checksum FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var title, cs string
		if err := rows.Scan(&title, &cs); err != nil {
			return nil, err
		}
		out[title] = cs
	}
	return out, rows.Err()
}

// RelatedTitles returns titles related to query: entries whose title contains
// it come first, followed by entries whose body matches. Matching is
// case-insensitive.
func (db *DB) RelatedTitles(query string, limit int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	byTitle, err := db.queryTitles(`
		SELECT title FROM entries
		WHERE title LIKE ? ESCAPE '\'
		ORDER BY title COLLATE NOCASE
		LIMIT ?
	`, "%"+likeEscaper.Replace(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("index: related titles: %w", err)
	}

	byBody, err := db.bodyMatches(query, limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(byTitle)+len(byBody))
	out := make([]string, 0, len(byTitle)+len(byBody))
	for _, list := range [][]string{byTitle, byBody} {
		for _, t := range list {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Backlinks returns the titles of entries that link to target, ignoring self-links.
func (db *DB) Backlinks(target string) ([]string, error) {
	out, err := db.queryTitles(`
		SELECT source FROM links
		WHERE target = ? AND source <> ? COLLATE NOCASE
		ORDER BY source COLLATE NOCASE
	`, target, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	return out, nil
}

func (db *DB) queryTitles(query string, args ...any) ([]string, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
