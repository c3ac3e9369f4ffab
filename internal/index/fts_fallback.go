//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; body matching uses LIKE on entries.body.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _ string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) error { return nil }

func (db *DB) bodyMatches(query string, limit int) ([]string, error) {
	out, err := db.queryTitles(`
		SELECT title FROM entries
		WHERE body LIKE ? ESCAPE '\'
		ORDER BY title COLLATE NOCASE
		LIMIT ?
	`, "%"+likeEscaper.Replace(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("index: body matches: %w", err)
	}
	return out, nil
}
