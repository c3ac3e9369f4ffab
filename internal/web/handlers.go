// Package web implements the HTML pages of the wiki using chi and html/template.
package web

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/starford/encyclopedia/internal/apperr"
	"github.com/starford/encyclopedia/internal/entryservice"
	"github.com/starford/encyclopedia/internal/markup"
)

const (
	msgNotFound       = "The requested page was not found."
	msgCreateInvalid  = "Entry form not valid, please try again!"
	msgCreateExists   = "This page title already exists! Please go to that title page and edit it instead!"
	msgEditInvalid    = "Editing form not valid, please try again!"
	msgNoEntries      = "There are no pages yet. Create one first!"
	msgInternalError  = "Something went wrong. Please try again later."
	msgTitleIsInvalid = "That title cannot be used for a page."
)

// Handler holds the page handlers.
type Handler struct {
	svc      *entryservice.Service
	renderer *markup.Renderer
	pages    map[string]*template.Template
	siteName string
}

// NewHandler parses the embedded templates and returns a Handler.
func NewHandler(svc *entryservice.Service, renderer *markup.Renderer, siteName string) (*Handler, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Handler{svc: svc, renderer: renderer, pages: pages, siteName: siteName}, nil
}

// titleParam extracts the {title} URL parameter. chi matches on the raw path
// only when the request path carried escapes that Path cannot represent;
// otherwise the parameter is already decoded and must not be decoded again.
func titleParam(r *http.Request) string {
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

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error(op+" failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	h.renderError(w, r, http.StatusInternalServerError, msgInternalError)
}

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	titles, err := h.svc.List(r.Context())
	if err != nil {
		h.internalError(w, r, "list entries", err)
		return
	}
	h.render(w, r, http.StatusOK, "index.html", &page{Entries: titles})
}

// Entry handles GET /entry/{title}.
func (h *Handler) Entry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Get(r.Context(), titleParam(r))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			h.renderError(w, r, http.StatusNotFound, msgNotFound)
		} else {
			h.internalError(w, r, "get entry", err)
		}
		return
	}

	content, err := h.renderer.Render([]byte(entry.Content))
	if err != nil {
		h.internalError(w, r, "render entry", err)
		return
	}
	backlinks, err := h.svc.Backlinks(r.Context(), entry.Title)
	if err != nil {
		slog.Warn("backlinks lookup failed", slog.String("title", entry.Title), slog.String("error", err.Error()))
	}

	h.render(w, r, http.StatusOK, "entry.html", &page{
		Title:     entry.Title,
		Content:   content,
		Backlinks: backlinks,
	})
}

// SearchRedirect handles GET /search; searching is a POST-only action.
func (h *Handler) SearchRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

// Search handles POST /search. An exact title match goes straight to the
// entry; otherwise related titles are listed.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	form := bindSearchForm(r)
	if err := form.Validate(); err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	slog.Debug("search request", slog.String("query", form.Query))

	title, err := h.svc.Resolve(r.Context(), form.Query)
	switch {
	case err == nil:
		http.Redirect(w, r, markup.EntryURL(title), http.StatusSeeOther)
		return
	case !errors.Is(err, apperr.ErrNotFound):
		h.internalError(w, r, "resolve title", err)
		return
	}

	related, err := h.svc.Related(r.Context(), form.Query)
	if err != nil {
		h.internalError(w, r, "related titles", err)
		return
	}
	h.render(w, r, http.StatusOK, "search.html", &page{Query: form.Query, Related: related})
}

// CreateForm handles GET /create.
func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "create.html", &page{})
}

// Create handles POST /create.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		p := &page{}
		p.addError(msgCreateInvalid)
		h.render(w, r, http.StatusBadRequest, "create.html", p)
		return
	}
	form := bindCreateForm(r)
	p := &page{Form: formView{Title: form.Title, Text: form.Text}}

	if err := form.Validate(); err != nil {
		p.Form.Errors = fieldErrors(err)
		p.addError(msgCreateInvalid)
		h.render(w, r, http.StatusUnprocessableEntity, "create.html", p)
		return
	}

	entry, err := h.svc.Create(r.Context(), form.Title, form.Text)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrAlreadyExists):
			p.addError(msgCreateExists)
			h.render(w, r, http.StatusConflict, "create.html", p)
		case errors.Is(err, apperr.ErrInvalidTitle):
			p.addError(msgTitleIsInvalid)
			h.render(w, r, http.StatusUnprocessableEntity, "create.html", p)
		default:
			h.internalError(w, r, "create entry", err)
		}
		return
	}

	slog.Info("entry created", slog.String("title", entry.Title))
	setFlash(w, Message{Level: LevelSuccess, Text: fmt.Sprintf("New page %q created successfully!", entry.Title)})
	http.Redirect(w, r, markup.EntryURL(entry.Title), http.StatusSeeOther)
}

// EditForm handles GET /edit/{title}. A missing entry still gets an empty
// form so it can be written from scratch, along with an error message.
func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	title := titleParam(r)
	entry, err := h.svc.Get(r.Context(), title)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			h.internalError(w, r, "get entry", err)
			return
		}
		p := &page{Title: title}
		p.addError(fmt.Sprintf("%q page does not exist and can't be edited, please create a new page instead!", title))
		h.render(w, r, http.StatusNotFound, "edit.html", p)
		return
	}
	h.render(w, r, http.StatusOK, "edit.html", &page{
		Title: entry.Title,
		Form:  formView{Text: entry.Content},
	})
}

// Edit handles POST /edit/{title}.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	title := titleParam(r)
	if err := parseForm(w, r); err != nil {
		p := &page{Title: title}
		p.addError(msgEditInvalid)
		h.render(w, r, http.StatusBadRequest, "edit.html", p)
		return
	}
	form := bindEditForm(r)

	if err := form.Validate(); err != nil {
		p := &page{Title: title, Form: formView{Text: form.Text, Errors: fieldErrors(err)}}
		p.addError(msgEditInvalid)
		h.render(w, r, http.StatusUnprocessableEntity, "edit.html", p)
		return
	}

	entry, err := h.svc.Save(r.Context(), title, form.Text)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidTitle) {
			h.renderError(w, r, http.StatusBadRequest, msgTitleIsInvalid)
		} else {
			h.internalError(w, r, "save entry", err)
		}
		return
	}

	slog.Info("entry updated", slog.String("title", entry.Title))
	setFlash(w, Message{Level: LevelSuccess, Text: fmt.Sprintf("Entry %q updated successfully!", entry.Title)})
	http.Redirect(w, r, markup.EntryURL(entry.Title), http.StatusSeeOther)
}

// Random handles GET /random.
func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	title, err := h.svc.Random(r.Context())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			setFlash(w, Message{Level: LevelError, Text: msgNoEntries})
			http.Redirect(w, r, "/", http.StatusFound)
		} else {
			h.internalError(w, r, "random entry", err)
		}
		return
	}
	http.Redirect(w, r, markup.EntryURL(title), http.StatusFound)
}
