package api

import "github.com/starford/encyclopedia/internal/entryservice"

// CreateEntryRequest is the request body for creating an entry.
type CreateEntryRequest struct {
	Title   string `json:"title" example:"Python" validate:"required"`
	Content string `json:"content" example:"# Python\nA language." validate:"required"`
}

// UpdateEntryRequest is the request body for replacing an entry's content.
type UpdateEntryRequest struct {
	Content string `json:"content" example:"# Python\nUpdated." validate:"required"`
}

// EntryDetail is the full entry response (aliased from the domain layer).
type EntryDetail = entryservice.EntryDetail

// EntryListResponse wraps the entry listing.
type EntryListResponse struct {
	Entries []string `json:"entries" validate:"required"`
	Total   int      `json:"total" example:"5" validate:"required"`
}

// SearchResponse holds the outcome of a title search. Exact is set when the
// query names an existing entry.
type SearchResponse struct {
	Query   string   `json:"query" example:"pyth"`
	Exact   string   `json:"exact,omitempty" example:"Python"`
	Related []string `json:"related" validate:"required"`
}

// RandomResponse names a randomly chosen entry.
type RandomResponse struct {
	Title string `json:"title" example:"Git" validate:"required"`
	URL   string `json:"url" example:"/entry/Git" validate:"required"`
}
