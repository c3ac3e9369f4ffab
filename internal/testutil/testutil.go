// Package testutil provides shared test helpers for setting up entry stores and indexes.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/encyclopedia/internal/entryservice"
	"github.com/starford/encyclopedia/internal/index"
	"github.com/starford/encyclopedia/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "encyclopedia-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary entries directory with a storage.Provider.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestService wires a temporary store and index into an entry service.
func TestService(t *testing.T, opts ...entryservice.Option) (*entryservice.Service, *storage.FS, *index.DB) {
	t.Helper()
	_, store := TestStore(t)
	db := TestDB(t)
	return entryservice.NewService(store, db, opts...), store, db
}

// Seed saves entries through the service so they are stored and indexed.
func Seed(t *testing.T, svc *entryservice.Service, entries map[string]string) {
	t.Helper()
	for title, text := range entries {
		if _, err := svc.Save(t.Context(), title, text); err != nil {
			t.Fatalf("seed %s: %v", title, err)
		}
	}
}
