// Package storage defines the flat-file entry store.
package storage

import "github.com/starford/encyclopedia/internal/models"

// Provider is the interface for entry file operations.
// Titles are file stems; the ".md" extension is added by the implementation.
type Provider interface {
	// Titles returns every entry title, sorted case-insensitively.
	Titles() ([]string, error)
	// List returns metadata, including content checksums, for every entry,
	// sorted by title.
	List() ([]models.EntryMetadata, error)
	// Read returns the raw Markdown of the entry. The error wraps
	// os.ErrNotExist when the entry is absent.
	Read(title string) ([]byte, error)
	// Write atomically stores content under title, replacing any previous version.
	Write(title string, content []byte) error
	// Create stores content under title but never replaces an existing file;
	// the error then wraps os.ErrExist.
	Create(title string, content []byte) error
	// Resolve returns the stored spelling of title, matching case-insensitively.
	Resolve(title string) (string, error)
}
