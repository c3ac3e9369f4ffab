// Package markup renders entry Markdown to sanitized HTML.
package markup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/starford/encyclopedia/internal/parser"
)

var labelEscaper = strings.NewReplacer(`[`, `\[`, `]`, `\]`)

// Renderer converts Markdown to HTML and keeps recently rendered output
// in a bounded LRU keyed by content digest.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy

	mu    sync.Mutex
	cache *lru.Cache // nil when caching is disabled
}

// New creates a Renderer. cacheSize <= 0 disables the cache.
func New(cacheSize int) *Renderer {
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(gmparser.WithAutoHeadingID()),
			// Raw HTML is allowed through goldmark; bluemonday strips anything unsafe.
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		policy: bluemonday.UGCPolicy(),
	}
	if cacheSize > 0 {
		r.cache = lru.New(cacheSize)
	}
	return r
}

// Render converts an entry (frontmatter is dropped) to sanitized HTML.
func (r *Renderer) Render(source []byte) (template.HTML, error) {
	key := digest(source)
	if out, ok := r.cached(key); ok {
		return out, nil
	}

	body := RewriteWikilinks(parser.Body(source))

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("markup: convert: %w", err)
	}
	out := template.HTML(r.policy.SanitizeBytes(buf.Bytes())) //nolint:gosec // sanitized above

	if r.cache != nil {
		r.mu.Lock()
		r.cache.Add(key, out)
		r.mu.Unlock()
	}
	return out, nil
}

// CachedLen reports how many rendered entries are held in the cache.
func (r *Renderer) CachedLen() int {
	if r.cache == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

func (r *Renderer) cached(key string) (template.HTML, bool) {
	if r.cache == nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cache.Get(key)
	if !ok {
		return "", false
	}
	return v.(template.HTML), true
}

// RewriteWikilinks turns [[Target]] and [[Target|Label]] into Markdown links
// pointing at /entry/Target.
func RewriteWikilinks(body string) string {
	if !strings.Contains(body, "[[") {
		return body
	}
	var sb strings.Builder
	rest := body
	for {
		start := strings.Index(rest, "[[")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+2:], "]]")
		if end < 0 {
			break
		}
		inner := rest[start+2 : start+2+end]
		if i := strings.LastIndex(inner, "[["); i >= 0 {
			// Innermost opening bracket pairs with this closing one.
			start += 2 + i
			end -= 2 + i
			inner = rest[start+2 : start+2+end]
		}
		target, label := parser.SplitWikilink(inner)
		sb.WriteString(rest[:start])
		if target == "" || strings.Contains(inner, "\n") {
			sb.WriteString(rest[start : start+4+end])
		} else {
			fmt.Fprintf(&sb, "[%s](<%s>)", labelEscaper.Replace(label), EntryURL(target))
		}
		rest = rest[start+4+end:]
	}
	sb.WriteString(rest)
	return sb.String()
}

// EntryURL returns the path of the entry page for title.
func EntryURL(title string) string {
	return "/entry/" + url.PathEscape(title)
}

func digest(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
