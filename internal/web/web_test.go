package web

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"

	"github.com/starford/encyclopedia/internal/entryservice"
	"github.com/starford/encyclopedia/internal/markup"
	"github.com/starford/encyclopedia/internal/storage"
	"github.com/starford/encyclopedia/internal/testutil"
)

type testEnv struct {
	svc    *entryservice.Service
	store  *storage.FS
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	svc, store, _ := testutil.TestService(t)
	h, err := NewHandler(svc, markup.New(16), "Encyclopedia")
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return &testEnv{svc: svc, store: store, router: NewRouter(h)}
}

func (e *testEnv) get(t *testing.T, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func flashCookieFrom(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == flashCookie && c.MaxAge > 0 {
			return c
		}
	}
	t.Fatal("no flash cookie set")
	return nil
}

func TestIndexListsEntries(t *testing.T) {
	env := newTestEnv(t)
	testutil.Seed(t, env.svc, map[string]string{"CSS": "c", "Version Control": "v"})

	w := env.get(t, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("index = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`href="/entry/CSS"`, `href="/entry/Version%20Control"`, `name="q"`} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestEntryRendersMarkdown(t *testing.T) {
	env := newTestEnv(t)
	testutil.Seed(t, env.svc, map[string]string{
		"Python": "# Python\n\nPython is **dynamic**.",
		"Django": "Built on [[Python]].",
	})

	w := env.get(t, "/entry/Python")
	if w.Code != http.StatusOK {
		t.Fatalf("entry = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<strong>dynamic</strong>") {
		t.Errorf("markdown not rendered: %s", body)
	}
	if !strings.Contains(body, `href="/edit/Python"`) {
		t.Error("missing edit link")
	}
	if !strings.Contains(body, "What links here") || !strings.Contains(body, `href="/entry/Django"`) {
		t.Error("missing backlinks")
	}
}

func TestEntryCaseInsensitiveAndEscaped(t *testing.T) {
	env := newTestEnv(t)
	testutil.Seed(t, env.svc, map[string]string{"Version Control": "# VC"})

	w := env.get(t, "/entry/version%20control")
	if w.Code != http.StatusOK {
		t.Fatalf("entry = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<title>Version Control - Encyclopedia</title>") {
		t.Error("canonical title not used")
	}
}

func TestEntryNotFound(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/entry/Nope", "/entry/..%2Fsecret"} {
		w := env.get(t, path)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), msgNotFound) {
			t.Errorf("%s: not-found page missing message", path)
		}
	}
}

func TestSearchExactMatchRedirects(t *testing.T) {
	env := newTestEnv(t)
	testutil.Seed(t, env.svc, map[string]string{"HTML": "h"})

	w := env.post(t, "/search", url.Values{"q": {"  html "}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("search = %d, want 303", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/entry/HTML" {
		t.Errorf("Location = %q", loc)
	}
}

func TestSearchShowsRelated(t *testing.T) {
	env := newTestEnv(t)
	testutil.Seed(t, env.svc, map[string]string{"Python": "p", "Django": "uses python", "CSS": "c"})

	w := env.post(t, "/search", url.Values{"q": {"pyt"}})
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `href="/entry/Python"`) || !strings.Contains(body, `href="/entry/Django"`) {
		t.Errorf("related titles missing: %s", body)
	}
	if strings.Contains(body, `href="/entry/CSS"`) {
		t.Error("unrelated title listed")
	}
	if !strings.Contains(body, `value="pyt"`) {
		t.Error("query not echoed in search box")
	}
}

func TestSearchInvalidRedirectsHome(t *testing.T) {
	env := newTestEnv(t)
	w := env.post(t, "/search", url.Values{"q": {"   "}})
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Errorf("blank search = %d %q", w.Code, w.Header().Get("Location"))
	}
	w = env.get(t, "/search")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Errorf("GET search = %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestCreateFlow(t *testing.T) {
	env := newTestEnv(t)

	if w := env.get(t, "/create"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `name="title"`) {
		t.Fatalf("create form = %d", w.Code)
	}

	w := env.post(t, "/create", url.Values{"title": {"Go"}, "text": {"# Go\r\nA language.\r\n"}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/entry/Go" {
		t.Errorf("Location = %q", loc)
	}

	data, err := env.store.Read("Go")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "# Go\nA language.\n" {
		t.Errorf("stored = %q", data)
	}

	// The success message shows up once on the next page.
	next := env.get(t, "/entry/Go", flashCookieFrom(t, w))
	if !strings.Contains(next.Body.String(), "New page &#34;Go&#34; created successfully!") {
		t.Errorf("flash message missing: %s", next.Body.String())
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	env := newTestEnv(t)
	testutil.Seed(t, env.svc, map[string]string{"Git": "original"})

	w := env.post(t, "/create", url.Values{"title": {"git"}, "text": {"replacement"}})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate create = %d, want 409", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "This page title already exists!") {
		t.Error("missing duplicate message")
	}
	if !strings.Contains(body, "replacement") {
		t.Error("form input not preserved")
	}
	data, _ := env.store.Read("Git")
	if string(data) != "original" {
		t.Errorf("entry overwritten: %q", data)
	}
}

func TestCreateInvalidForm(t *testing.T) {
	env := newTestEnv(t)
	cases := []url.Values{
		{"title": {""}, "text": {"body"}},
		{"title": {"Title"}, "text": {"  \r\n "}},
		{"title": {"a/b"}, "text": {"body"}},
		{"title": {".hidden"}, "text": {"body"}},
		{"title": {strings.Repeat("a", storage.MaxTitleLen+1)}, "text": {"body"}},
		{"title": {strings.Repeat("ж", storage.MaxTitleLen)}, "text": {"body"}},
	}
	for _, form := range cases {
		w := env.post(t, "/create", form)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("create %v = %d, want 422", form, w.Code)
			continue
		}
		if !strings.Contains(w.Body.String(), msgCreateInvalid) {
			t.Errorf("create %v: missing invalid message", form)
		}
	}
	titles, _ := env.svc.List(t.Context())
	if len(titles) != 0 {
		t.Errorf("invalid forms created entries: %v", titles)
	}
}

func TestTitleWithPercentRoundTrips(t *testing.T) {
	env := newTestEnv(t)
	const title = "Discount %41 off"

	w := env.post(t, "/create", url.Values{"title": {title}, "text": {"sale"}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("create = %d", w.Code)
	}
	loc := w.Header().Get("Location")
	if loc != "/entry/Discount%20%2541%20off" {
		t.Fatalf("Location = %q", loc)
	}
	w = env.get(t, loc)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s = %d", loc, w.Code)
	}
	if !strings.Contains(w.Body.String(), "sale") {
		t.Error("entry body missing")
	}

	w = env.post(t, "/edit/Discount%20%2541%20off", url.Values{"text": {"clearance"}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("edit = %d", w.Code)
	}
	data, err := env.store.Read(title)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "clearance" {
		t.Errorf("content = %q", data)
	}
	titles, _ := env.svc.List(t.Context())
	if !slices.Equal(titles, []string{title}) {
		t.Errorf("titles = %v, want only %q", titles, title)
	}
}

func TestEditOverlongTitleRejected(t *testing.T) {
	env := newTestEnv(t)
	w := env.post(t, "/edit/"+strings.Repeat("a", 200), url.Values{"text": {"body"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("edit = %d, want 400", w.Code)
	}
	titles, _ := env.svc.List(t.Context())
	if len(titles) != 0 {
		t.Errorf("overlong title stored: %v", titles)
	}
}

func TestEditFlow(t *testing.T) {
	env := newTestEnv(t)
	testutil.Seed(t, env.svc, map[string]string{"CSS": "old <styles>"})

	w := env.get(t, "/edit/css")
	if w.Code != http.StatusOK {
		t.Fatalf("edit form = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "old &lt;styles&gt;") {
		t.Error("edit form not prefilled")
	}

	w = env.post(t, "/edit/css", url.Values{"text": {"new styles"}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("edit = %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/entry/CSS" {
		t.Errorf("Location = %q", loc)
	}
	data, _ := env.store.Read("CSS")
	if string(data) != "new styles" {
		t.Errorf("stored = %q", data)
	}

	next := env.get(t, "/", flashCookieFrom(t, w))
	if !strings.Contains(next.Body.String(), "updated successfully!") {
		t.Error("missing update flash")
	}
}

func TestEditMissingEntry(t *testing.T) {
	env := newTestEnv(t)
	w := env.get(t, "/edit/Ghost")
	if w.Code != http.StatusNotFound {
		t.Fatalf("edit missing = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "does not exist and can&#39;t be edited") {
		t.Errorf("missing error message: %s", w.Body.String())
	}
}

func TestEditInvalidForm(t *testing.T) {
	env := newTestEnv(t)
	testutil.Seed(t, env.svc, map[string]string{"CSS": "keep"})

	w := env.post(t, "/edit/CSS", url.Values{"text": {""}})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("edit invalid = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), msgEditInvalid) {
		t.Error("missing invalid message")
	}
	data, _ := env.store.Read("CSS")
	if string(data) != "keep" {
		t.Errorf("entry changed: %q", data)
	}
}

func TestRandomLandsOnListedTitle(t *testing.T) {
	env := newTestEnv(t)
	testutil.Seed(t, env.svc, map[string]string{"CSS": "c", "Django": "d", "Git": "g", "Version Control": "v"})
	titles, _ := env.svc.List(t.Context())

	for i := 0; i < 30; i++ {
		w := env.get(t, "/random")
		if w.Code != http.StatusFound {
			t.Fatalf("random = %d", w.Code)
		}
		loc := w.Header().Get("Location")
		title, err := url.PathUnescape(strings.TrimPrefix(loc, "/entry/"))
		if err != nil || !slices.Contains(titles, title) {
			t.Fatalf("random landed on %q, not in %v", loc, titles)
		}
		if page := env.get(t, loc); page.Code != http.StatusOK {
			t.Fatalf("random target %q = %d", loc, page.Code)
		}
	}
}

func TestRandomWithoutEntries(t *testing.T) {
	env := newTestEnv(t)
	w := env.get(t, "/random")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("random empty = %d %q", w.Code, w.Header().Get("Location"))
	}
	next := env.get(t, "/", flashCookieFrom(t, w))
	if !strings.Contains(next.Body.String(), msgNoEntries) {
		t.Error("missing no-entries message")
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)
	w := env.get(t, "/static/styles.css")
	if w.Code != http.StatusOK {
		t.Errorf("styles.css = %d", w.Code)
	}
}
