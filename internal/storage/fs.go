package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/starford/encyclopedia/internal/apperr"
	"github.com/starford/encyclopedia/internal/models"
)

const (
	entryExt  = ".md"
	tmpPrefix = ".entry-tmp-"

	// MaxTitleLen is the longest title in runes.
	MaxTitleLen = 128
	// maxNameBytes is the file-name limit of common file systems.
	maxNameBytes = 255
)

// FS implements Provider on a single flat directory of Markdown files.
type FS struct {
	root string // absolute path to the entries directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute entries directory.
func (f *FS) Root() string {
	return f.root
}

// ValidTitle reports whether title can be stored as a file name in the
// entries directory: at most MaxTitleLen runes and, with the extension,
// no longer than a file name may be.
func ValidTitle(title string) bool {
	if title == "" || title != strings.TrimSpace(title) {
		return false
	}
	if utf8.RuneCountInString(title) > MaxTitleLen || len(title)+len(entryExt) > maxNameBytes {
		return false
	}
	if strings.HasPrefix(title, ".") || strings.ContainsAny(title, "/\\\x00") {
		return false
	}
	return true
}

// TitleFromFile returns the entry title for a file name, or false when the
// file is not an entry.
func TitleFromFile(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, entryExt) || strings.HasPrefix(base, ".") {
		return "", false
	}
	return strings.TrimSuffix(base, entryExt), true
}

// entryPath maps a title to its file, rejecting anything that would
// leave the entries directory.
func (f *FS) entryPath(title string) (string, error) {
	if !ValidTitle(title) {
		return "", fmt.Errorf("storage: %q: %w", title, apperr.ErrInvalidTitle)
	}
	abs := filepath.Join(f.root, title+entryExt)
	if filepath.Dir(abs) != f.root {
		return "", fmt.Errorf("storage: path escapes entries root: %q: %w", title, apperr.ErrInvalidTitle)
	}
	return abs, nil
}

// Titles returns every entry title, sorted case-insensitively, without
// reading file contents.
func (f *FS) Titles() ([]string, error) {
	dirents, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: titles: %w", err)
	}
	out := make([]string, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if title, ok := TitleFromFile(d.Name()); ok {
			out = append(out, title)
		}
	}
	sortTitles(out, func(t string) string { return t })
	return out, nil
}

func sortTitles[T any](items []T, title func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(title(items[i])) < strings.ToLower(title(items[j]))
	})
}

// List reads the entries directory and returns metadata, including content
// checksums, for every entry.
func (f *FS) List() ([]models.EntryMetadata, error) {
	dirents, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	out := make([]models.EntryMetadata, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		title, ok := TitleFromFile(d.Name())
		if !ok {
			continue
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // removed while listing
			}
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		data, err := os.ReadFile(filepath.Join(f.root, d.Name()))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		out = append(out, models.EntryMetadata{
			Title:     title,
			Checksum:  Checksum(data),
			UpdatedAt: info.ModTime(),
		})
	}
	sortTitles(out, func(m models.EntryMetadata) string { return m.Title })
	return out, nil
}

// Read returns the raw bytes of an entry.
func (f *FS) Read(title string) ([]byte, error) {
	abs, err := f.entryPath(title)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", title, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(title string, content []byte) error {
	abs, err := f.entryPath(title)
	if err != nil {
		return err
	}
	tmpName, err := f.writeTemp(content)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// Create stores content under title only if no file with that exact name
// exists. The fully written temp file is hard-linked into place, so the
// check and the write cannot interleave with another writer. An existing
// entry yields an error wrapping os.ErrExist.
func (f *FS) Create(title string, content []byte) error {
	abs, err := f.entryPath(title)
	if err != nil {
		return err
	}
	tmpName, err := f.writeTemp(content)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)
	if err := os.Link(tmpName, abs); err != nil {
		return fmt.Errorf("storage: create %s: %w", title, err)
	}
	return nil
}

// writeTemp writes content to a synced temp file in the entries directory
// and returns its path.
func (f *FS) writeTemp(content []byte) (string, error) {
	tmp, err := os.CreateTemp(f.root, tmpPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	success = true
	return tmpName, nil
}

// Resolve returns the stored title matching title. An exact match wins;
// otherwise the first case-insensitive match in listing order is used.
func (f *FS) Resolve(title string) (string, error) {
	abs, err := f.entryPath(title)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err == nil {
		// On case-insensitive file systems the stat succeeds for any
		// spelling, so still prefer the name stored in the directory.
		if stored, ok := f.storedName(title); ok {
			return stored, nil
		}
		return title, nil
	}
	if stored, ok := f.storedName(title); ok {
		return stored, nil
	}
	return "", fmt.Errorf("storage: resolve %s: %w", title, os.ErrNotExist)
}

func (f *FS) storedName(title string) (string, bool) {
	names, err := f.Titles()
	if err != nil {
		return "", false
	}
	var folded string
	for _, name := range names {
		if name == title {
			return name, true
		}
		if folded == "" && strings.EqualFold(name, title) {
			folded = name
		}
	}
	return folded, folded != ""
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
