package index

// EntryIndex is the set of index operations the rest of the app relies on.
type EntryIndex interface {
	UpsertEntry(e EntryRow, body string, links []string) error
	DeleteEntry(title string) error
	GetChecksum(title string) (string, error)
	AllChecksums() (map[string]string, error)
	RelatedTitles(query string, limit int) ([]string, error)
	Backlinks(target string) ([]string, error)
	Close() error
}

var _ EntryIndex = (*DB)(nil)
