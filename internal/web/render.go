package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/starford/encyclopedia/internal/markup"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var pageNames = []string{
	"index.html",
	"entry.html",
	"search.html",
	"create.html",
	"edit.html",
	"error.html",
}

// formView carries submitted values and per-field errors back into a form.
type formView struct {
	Title  string
	Text   string
	Errors map[string]string
}

// page is the template data shared by every page.
type page struct {
	SiteName string
	Messages []Message
	Query    string

	Title     string
	Entries   []string
	Content   template.HTML
	Backlinks []string
	Related   []string
	Form      formView
	Error     string
}

func (p *page) addError(text string) {
	p.Messages = append(p.Messages, Message{Level: LevelError, Text: text})
}

func parsePages() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"entryURL": markup.EntryURL,
		"editURL":  editURL,
	}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// render executes a page into a buffer first so that template failures
// never leave a half-written response.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data *page) {
	data.SiteName = h.siteName
	data.Messages = append(popFlash(w, r), data.Messages...)

	tmpl, ok := h.pages[name]
	if !ok {
		slog.Error("unknown template", slog.String("template", name))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		slog.Error("template render failed", slog.String("template", name), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.render(w, r, status, "error.html", &page{Title: "Error", Error: message})
}

func editURL(title string) string {
	return "/edit/" + url.PathEscape(title)
}
