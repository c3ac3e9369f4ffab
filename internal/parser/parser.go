// Package parser extracts frontmatter, the heading, and outgoing links from entry Markdown.
package parser

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe  = regexp.MustCompile(`\[\[(.*?)\]\]`)
	entryLinkRe = regexp.MustCompile(`\]\(/entry/([^)\s]+)\)`)
)

// Result holds the output of parsing an entry.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Links       []string
	Heading     string
}

// Parse splits frontmatter from body and collects the heading and link targets.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(body),
		Heading:     deriveHeading(fm, body),
	}, nil
}

// Body returns the Markdown body of data with any frontmatter removed.
func Body(data []byte) string {
	_, body, _ := splitFrontmatter(data)
	return body
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Not frontmatter after all; a horizontal rule at the top is legal Markdown.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// SplitWikilink splits the inside of [[...]] into target and label.
func SplitWikilink(raw string) (target, label string) {
	target = raw
	label = raw
	if i := strings.Index(raw, "|"); i >= 0 {
		target = raw[:i]
		label = raw[i+1:]
	}
	return strings.TrimSpace(target), strings.TrimSpace(label)
}

// extractLinks returns deduplicated link targets from wikilinks and /entry/ links.
func extractLinks(body string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(target string) {
		if target == "" {
			return
		}
		key := strings.ToLower(target)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, target)
	}

	for _, m := range wikilinkRe.FindAllStringSubmatch(body, -1) {
		target, _ := SplitWikilink(m[1])
		add(target)
	}
	for _, m := range entryLinkRe.FindAllStringSubmatch(body, -1) {
		target, err := url.PathUnescape(m[1])
		if err != nil {
			target = m[1]
		}
		add(strings.TrimSpace(target))
	}
	return out
}

// deriveHeading returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveHeading(fm map[string]interface{}, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
