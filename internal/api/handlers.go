package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/encyclopedia/internal/apperr"
	"github.com/starford/encyclopedia/internal/entryservice"
	"github.com/starford/encyclopedia/internal/markup"
	"github.com/starford/encyclopedia/internal/storage"
)

// Validate validates the create request.
func (r CreateEntryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title,
			validation.Required,
			validation.RuneLength(1, storage.MaxTitleLen),
			validation.By(func(v interface{}) error {
				if s, _ := v.(string); s != "" && !storage.ValidTitle(strings.TrimSpace(s)) {
					return apperr.ErrInvalidTitle
				}
				return nil
			}),
		),
		validation.Field(&r.Content, validation.Required),
	)
}

// Validate validates the update request.
func (r UpdateEntryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

// Handler holds API route handlers.
type Handler struct {
	svc *entryservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *entryservice.Service) *Handler {
	return &Handler{svc: svc}
}

// entryTitle extracts the {title} URL parameter. chi matches on the raw path
// only when the request path carried escapes that Path cannot represent;
// otherwise the parameter is already decoded and must not be decoded again.
func entryTitle(r *http.Request) string {
	raw := chi.URLParam(r, "title")
	if r.URL.RawPath == "" {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListEntries handles GET /api/entries.
//
//	@Summary		List all entry titles
//	@Tags			entries
//	@Produce		json
//	@Success		200	{object}	EntryListResponse
//	@Security		BearerAuth
//	@Router			/entries [get]
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	titles, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list entries", "", err)
		return
	}
	writeJSON(w, http.StatusOK, EntryListResponse{Entries: titles, Total: len(titles)})
}

// GetEntry handles GET /api/entries/{title}.
//
//	@Summary		Get a single entry by title
//	@Tags			entries
//	@Produce		json
//	@Param			title	path		string	true	"Entry title"
//	@Success		200		{object}	EntryDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{title} [get]
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	title := entryTitle(r)
	detail, err := h.svc.Detail(r.Context(), title)
	if err != nil {
		writeError(w, "get entry", title, err)
		return
	}
	w.Header().Set("ETag", `"`+detail.Checksum+`"`)
	writeJSON(w, http.StatusOK, detail)
}

// CreateEntry handles POST /api/entries.
//
//	@Summary		Create a new entry
//	@Tags			entries
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateEntryRequest	true	"Entry to create"
//	@Success		201		{object}	EntryDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries [post]
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	entry, err := h.svc.Create(r.Context(), req.Title, req.Content)
	if err != nil {
		writeError(w, "create entry", req.Title, err)
		return
	}
	detail, err := h.svc.Detail(r.Context(), entry.Title)
	if err != nil {
		writeError(w, "get entry", entry.Title, err)
		return
	}
	w.Header().Set("Location", "/api/entries/"+url.PathEscape(entry.Title))
	writeJSON(w, http.StatusCreated, detail)
}

// UpdateEntry handles PUT /api/entries/{title}.
//
//	@Summary		Update an entry with optimistic concurrency
//	@Tags			entries
//	@Accept			json
//	@Produce		json
//	@Param			title		path	string				true	"Entry title"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdateEntryRequest	true	"Updated content"
//	@Success		200			{object}	EntryDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{title} [put]
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	title := entryTitle(r)
	var req UpdateEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)
	entry, err := h.svc.Update(r.Context(), title, req.Content, ifMatch)
	if err != nil {
		writeError(w, "update entry", title, err)
		return
	}
	detail, err := h.svc.Detail(r.Context(), entry.Title)
	if err != nil {
		writeError(w, "get entry", entry.Title, err)
		return
	}
	w.Header().Set("ETag", `"`+detail.Checksum+`"`)
	writeJSON(w, http.StatusOK, detail)
}

// Search handles GET /api/search.
//
//	@Summary		Look up a title and list related entries
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	true	"Search query"
//	@Success		200	{object}	SearchResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	resp := SearchResponse{Query: q}
	exact, err := h.svc.Resolve(r.Context(), q)
	switch {
	case err == nil:
		resp.Exact = exact
	case !errors.Is(err, apperr.ErrNotFound):
		writeError(w, "resolve title", q, err)
		return
	}
	resp.Related, err = h.svc.Related(r.Context(), q)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Random handles GET /api/random.
//
//	@Summary		Pick a random entry
//	@Tags			entries
//	@Produce		json
//	@Success		200	{object}	RandomResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/random [get]
func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	title, err := h.svc.Random(r.Context())
	if err != nil {
		writeError(w, "random entry", "", err)
		return
	}
	writeJSON(w, http.StatusOK, RandomResponse{Title: title, URL: markup.EntryURL(title)})
}
