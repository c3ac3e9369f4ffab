package web

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/encyclopedia/internal/storage"
)

const (
	maxFormBytes = 1 << 20
	maxQueryLen  = 256
)

var errTitleChars = errors.New("must be a valid file name: no slashes, no leading dot, at most 255 bytes")

// SearchForm is the sidebar search box.
type SearchForm struct {
	Query string `json:"q"`
}

// Validate validates the search form.
func (f SearchForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Query, validation.Required, validation.RuneLength(1, maxQueryLen)),
	)
}

// CreateForm is the new-entry form.
type CreateForm struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Validate validates the create form.
func (f CreateForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Title,
			validation.Required,
			validation.RuneLength(1, storage.MaxTitleLen),
			validation.By(storableTitle),
		),
		validation.Field(&f.Text, validation.Required),
	)
}

// EditForm is the edit-entry form; the title comes from the URL.
type EditForm struct {
	Text string `json:"text"`
}

// Validate validates the edit form.
func (f EditForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Text, validation.Required),
	)
}

func storableTitle(value interface{}) error {
	s, _ := value.(string)
	if s == "" || storage.ValidTitle(s) {
		return nil
	}
	return errTitleChars
}

// fieldErrors flattens ozzo validation errors into field → message.
func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
	}
	return out
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	return r.ParseForm()
}

func bindSearchForm(r *http.Request) SearchForm {
	return SearchForm{Query: strings.TrimSpace(r.PostFormValue("q"))}
}

func bindCreateForm(r *http.Request) CreateForm {
	return CreateForm{
		Title: strings.TrimSpace(r.PostFormValue("title")),
		Text:  normalizeText(r.PostFormValue("text")),
	}
}

func bindEditForm(r *http.Request) EditForm {
	return EditForm{Text: normalizeText(r.PostFormValue("text"))}
}

// normalizeText converts browser textarea line endings to LF. Whitespace-only
// content is treated as empty.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
