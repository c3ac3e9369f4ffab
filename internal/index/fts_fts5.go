//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			title UNINDEXED,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, title, body string) error {
	if _, err := tx.Exec(`DELETE FROM entries_fts WHERE title = ?`, title); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO entries_fts (title, body) VALUES (?, ?)`, title, body); err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, title string) error {
	if _, err := tx.Exec(`DELETE FROM entries_fts WHERE title = ?`, title); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

// bodyMatches runs the query as a single FTS5 phrase, ranked by relevance.
func (db *DB) bodyMatches(query string, limit int) ([]string, error) {
	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	out, err := db.queryTitles(`
		SELECT title FROM entries_fts
		WHERE entries_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, phrase, limit)
	if err != nil {
		return nil, fmt.Errorf("index: body matches: %w", err)
	}
	return out, nil
}
