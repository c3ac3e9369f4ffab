package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/starford/encyclopedia/internal/entryservice"
	"github.com/starford/encyclopedia/internal/storage"
	"github.com/starford/encyclopedia/internal/testutil"
)

// testEnv sets up a temp entries dir, SQLite DB, service, and router.
// An empty authToken means auth is disabled.
func testEnv(t *testing.T, authToken string) (*entryservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*entryservice.Service, http.Handler) {
	t.Helper()
	svc, _, _ := testutil.TestService(t)
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetEntry(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/entries", CreateEntryRequest{Title: "Version Control", Content: "# VCS\nSee [[Git]]."})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/api/entries/Version%20Control" {
		t.Errorf("Location = %q", loc)
	}

	w = do(t, router, http.MethodGet, "/entries/version%20control", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var entry EntryDetail
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Title != "Version Control" {
		t.Errorf("title = %q", entry.Title)
	}
	if entry.Heading != "VCS" {
		t.Errorf("heading = %q, want VCS", entry.Heading)
	}
	if entry.Content != "# VCS\nSee [[Git]]." {
		t.Errorf("content = %q", entry.Content)
	}
	if !slices.Equal(entry.Links, []string{"Git"}) {
		t.Errorf("links = %v", entry.Links)
	}
	if etag := w.Header().Get("ETag"); etag != `"`+entry.Checksum+`"` {
		t.Errorf("ETag = %q, checksum = %q", etag, entry.Checksum)
	}
}

func TestCreateDuplicate(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/entries", CreateEntryRequest{Title: "Git", Content: "a"})
	if w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	w = do(t, router, http.MethodPost, "/entries", CreateEntryRequest{Title: "GIT", Content: "b"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
	got, err := svc.Get(t.Context(), "Git")
	if err != nil || got.Content != "a" {
		t.Errorf("entry after duplicate = %+v, %v", got, err)
	}
}

func TestCreateInvalid(t *testing.T) {
	_, router := testEnv(t, "")

	for _, body := range []any{
		CreateEntryRequest{Title: "", Content: "x"},
		CreateEntryRequest{Title: "a/b", Content: "x"},
		CreateEntryRequest{Title: "ok", Content: ""},
		CreateEntryRequest{Title: strings.Repeat("a", storage.MaxTitleLen+1), Content: "x"},
		CreateEntryRequest{Title: strings.Repeat("ж", storage.MaxTitleLen), Content: "x"},
		map[string]string{"title": "x", "content": "y", "path": "z"},
	} {
		w := do(t, router, http.MethodPost, "/entries", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("create %+v = %d, want 400", body, w.Code)
		}
	}
}

func TestTitleWithPercentEscapes(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/entries", CreateEntryRequest{Title: "Discount %41 off", Content: "sale"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	loc := w.Header().Get("Location")
	if loc != "/api/entries/Discount%20%2541%20off" {
		t.Fatalf("Location = %q", loc)
	}

	w = do(t, router, http.MethodGet, "/entries/Discount%20%2541%20off", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var entry EntryDetail
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Title != "Discount %41 off" || entry.Content != "sale" {
		t.Errorf("entry = %q %q", entry.Title, entry.Content)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/entries", CreateEntryRequest{Title: "Lock", Content: "v1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var created EntryDetail
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = do(t, router, http.MethodPut, "/entries/Lock", UpdateEntryRequest{Content: "v2"}, "If-Match", `"`+created.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	// The old checksum is now stale.
	w = do(t, router, http.MethodPut, "/entries/Lock", UpdateEntryRequest{Content: "v3"}, "If-Match", created.Checksum)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestUpdateWithoutIfMatch(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/entries", CreateEntryRequest{Title: "NoLock", Content: "v1"})

	w := do(t, router, http.MethodPut, "/entries/nolock", UpdateEntryRequest{Content: "v2"})
	if w.Code != http.StatusOK {
		t.Fatalf("update without If-Match = %d, want 200", w.Code)
	}
	var entry EntryDetail
	_ = json.Unmarshal(w.Body.Bytes(), &entry)
	if entry.Title != "NoLock" || entry.Content != "v2" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestUpdateEntry_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/entries/Ghost", UpdateEntryRequest{Content: "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/entries/Nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing entry = %d, want 404", w.Code)
	}
}

func TestListEntries(t *testing.T) {
	svc, router := testEnv(t, "")
	testutil.Seed(t, svc, map[string]string{"b": "b", "A": "a"})

	w := do(t, router, http.MethodGet, "/entries", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp EntryListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || !slices.Equal(resp.Entries, []string{"A", "b"}) {
		t.Errorf("list = %+v", resp)
	}
}

func TestSearchEndpoint(t *testing.T) {
	svc, router := testEnv(t, "")
	testutil.Seed(t, svc, map[string]string{"Python": "p", "Django": "a python framework", "CSS": "c"})

	w := do(t, router, http.MethodGet, "/search?q=python", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Exact != "Python" {
		t.Errorf("exact = %q, want Python", resp.Exact)
	}
	if !slices.Contains(resp.Related, "Django") || slices.Contains(resp.Related, "CSS") {
		t.Errorf("related = %v", resp.Related)
	}

	w = do(t, router, http.MethodGet, "/search?q=zzz", nil)
	resp = SearchResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Exact != "" || resp.Related == nil || len(resp.Related) != 0 {
		t.Errorf("no-match search = %+v", resp)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestRandomEndpoint(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/random", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("random empty = %d, want 404", w.Code)
	}

	testutil.Seed(t, svc, map[string]string{"CSS": "c", "Git": "g"})
	titles, _ := svc.List(t.Context())
	for i := 0; i < 10; i++ {
		w = do(t, router, http.MethodGet, "/random", nil)
		var resp RandomResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if w.Code != http.StatusOK || !slices.Contains(titles, resp.Title) {
			t.Fatalf("random = %d %+v", w.Code, resp)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodPost, "/entries", CreateEntryRequest{Title: "Auth", Content: "test"}, "Authorization", "Bearer secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/entries", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/entries", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/entries", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// blockingSSE writes stream headers and blocks until the client goes away.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)
	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func TestSSEEvents_NotMounted(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("SSE without handler = %d, want 404", w.Code)
	}
}
