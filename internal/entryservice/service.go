// Package entryservice coordinates the entry store and the search index.
package entryservice

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/starford/encyclopedia/internal/apperr"
	"github.com/starford/encyclopedia/internal/index"
	"github.com/starford/encyclopedia/internal/models"
	"github.com/starford/encyclopedia/internal/parser"
	"github.com/starford/encyclopedia/internal/storage"
)

// DefaultRelatedLimit caps related-title results.
const DefaultRelatedLimit = 50

// ChangeFunc is notified after an entry has been written; kind is
// index.EventCreated or index.EventUpdated.
type ChangeFunc func(kind, title string)

// Service coordinates storage and index operations.
type Service struct {
	mu       sync.Mutex // serializes check-then-write in Create, Save and Update
	store    storage.Provider
	db       index.EntryIndex
	onChange ChangeFunc
	intn     func(n int) int
}

// Option configures a Service.
type Option func(*Service)

// WithChangeFunc registers a callback invoked after successful saves.
func WithChangeFunc(fn ChangeFunc) Option {
	return func(s *Service) {
		s.onChange = fn
	}
}

// WithRandSource overrides the index picker used by Random.
func WithRandSource(intn func(n int) int) Option {
	return func(s *Service) {
		s.intn = intn
	}
}

// NewService creates a new entry service.
func NewService(store storage.Provider, db index.EntryIndex, opts ...Option) *Service {
	s := &Service{store: store, db: db, intn: rand.IntN}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every entry title in listing order.
func (s *Service) List(_ context.Context) ([]string, error) {
	return s.store.Titles()
}

// Resolve returns the canonical spelling of title or apperr.ErrNotFound.
func (s *Service) Resolve(_ context.Context, title string) (string, error) {
	canonical, err := s.store.Resolve(title)
	if errors.Is(err, apperr.ErrInvalidTitle) {
		// Such a title can never have been stored.
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", translate(err)
	}
	return canonical, nil
}

// Get reads an entry by title, matching case-insensitively.
func (s *Service) Get(ctx context.Context, title string) (*models.Entry, error) {
	canonical, err := s.Resolve(ctx, title)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(canonical)
	if err != nil {
		return nil, translate(err)
	}
	return &models.Entry{
		Title:     canonical,
		Content:   string(data),
		Checksum:  storage.Checksum(data),
		UpdatedAt: time.Now(),
	}, nil
}

// Create stores a new entry. It fails with apperr.ErrAlreadyExists when
// any spelling of title is already present; nothing is overwritten.
func (s *Service) Create(ctx context.Context, title, text string) (*models.Entry, error) {
	title = strings.TrimSpace(title)
	if !storage.ValidTitle(title) {
		return nil, apperr.ErrInvalidTitle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.store.Resolve(title); err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if err = translate(err); !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	data := []byte(text)
	if err := s.store.Create(title, data); err != nil {
		return nil, translate(err)
	}
	return s.indexed(title, data, index.EventCreated)
}

// Save creates or overwrites an entry. An existing entry keeps its stored
// spelling even when title differs in case.
func (s *Service) Save(ctx context.Context, title, text string) (*models.Entry, error) {
	title = strings.TrimSpace(title)
	if !storage.ValidTitle(title) {
		return nil, apperr.ErrInvalidTitle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := index.EventCreated
	canonical, err := s.store.Resolve(title)
	switch {
	case err == nil:
		title = canonical
		kind = index.EventUpdated
	case !errors.Is(translate(err), apperr.ErrNotFound):
		return nil, translate(err)
	}
	return s.write(ctx, title, text, kind)
}

// Update overwrites an existing entry. When ifMatch is non-empty it must equal
// the checksum of the stored content, otherwise apperr.ErrConflict is returned.
func (s *Service) Update(ctx context.Context, title, text, ifMatch string) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.Get(ctx, title)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != current.Checksum {
		return nil, fmt.Errorf("entryservice: update %s: %w", current.Title, apperr.ErrConflict)
	}
	return s.write(ctx, current.Title, text, index.EventUpdated)
}

// EntryDetail is an entry enriched with parsed metadata and backlinks.
type EntryDetail struct {
	models.Entry
	Heading     string                 `json:"heading,omitempty"`
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Links       []string               `json:"links"`
	Backlinks   []string               `json:"backlinks"`
}

// Detail reads an entry and attaches its heading, outgoing links and backlinks.
func (s *Service) Detail(ctx context.Context, title string) (*EntryDetail, error) {
	entry, err := s.Get(ctx, title)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse([]byte(entry.Content))
	if err != nil {
		return nil, fmt.Errorf("entryservice: parse %s: %w", entry.Title, err)
	}
	backlinks, err := s.Backlinks(ctx, entry.Title)
	if err != nil {
		return nil, err
	}
	return &EntryDetail{
		Entry:       *entry,
		Heading:     res.Heading,
		Frontmatter: res.Frontmatter,
		Links:       nonNilSlice(res.Links),
		Backlinks:   backlinks,
	}, nil
}

// Related returns titles related to query, best matches first.
func (s *Service) Related(_ context.Context, query string) ([]string, error) {
	titles, err := s.db.RelatedTitles(query, DefaultRelatedLimit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(titles), nil
}

// Random returns a title chosen uniformly from the current listing.
func (s *Service) Random(ctx context.Context) (string, error) {
	titles, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if len(titles) == 0 {
		return "", apperr.ErrNotFound
	}
	return titles[s.intn(len(titles))], nil
}

// Backlinks returns titles of entries linking to title.
func (s *Service) Backlinks(_ context.Context, title string) ([]string, error) {
	bl, err := s.db.Backlinks(title)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(bl), nil
}

func (s *Service) write(_ context.Context, title, text, kind string) (*models.Entry, error) {
	data := []byte(text)
	if err := s.store.Write(title, data); err != nil {
		return nil, translate(err)
	}
	return s.indexed(title, data, kind)
}

// indexed records freshly stored data in the index and notifies onChange.
func (s *Service) indexed(title string, data []byte, kind string) (*models.Entry, error) {
	now := time.Now()
	if err := index.IndexEntry(s.db, title, data, now); err != nil {
		return nil, fmt.Errorf("entryservice: index %s: %w", title, err)
	}
	if s.onChange != nil {
		s.onChange(kind, title)
	}
	return &models.Entry{
		Title:     title,
		Content:   string(data),
		Checksum:  storage.Checksum(data),
		UpdatedAt: now,
	}, nil
}

// translate maps storage errors onto apperr sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return apperr.ErrNotFound
	case errors.Is(err, os.ErrExist):
		return apperr.ErrAlreadyExists
	default:
		return err
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
