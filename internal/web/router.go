package web

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the page routes and embedded static assets.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Index)
	r.Get("/entry/{title}", h.Entry)

	r.Get("/search", h.SearchRedirect)
	r.Post("/search", h.Search)

	r.Get("/create", h.CreateForm)
	r.Post("/create", h.Create)

	r.Get("/edit/{title}", h.EditForm)
	r.Post("/edit/{title}", h.Edit)

	r.Get("/random", h.Random)

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	return r
}
