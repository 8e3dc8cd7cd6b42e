// Package search provides an in-memory full-text index over rendered pages.
//
// Matches rank by where they occur: page titles first, then section titles,
// then body lines. Within a rank, results keep the order pages were indexed.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Kind says where a result matched.
type Kind string

const (
	KindPage    Kind = "page"
	KindSection Kind = "section"
	KindBody    Kind = "body"
)

// Document is one page as seen by the index.
type Document struct {
	Route       string
	URL         string
	Title       string
	Description string
	// Text is the page's plain text, one block per line.
	Text     string
	Sections []Section
}

// Section is a linkable heading within a page.
type Section struct {
	Title string
	ID    string
}

// Options controls matching.
type Options struct {
	Context       int
	Limit         int
	CaseSensitive bool
}

// Result is a single match.
type Result struct {
	Kind     Kind          `json:"kind"`
	Route    string        `json:"route"`
	URL      string        `json:"url"`
	Title    string        `json:"title"`
	Section  string        `json:"section,omitempty"`
	Anchor   string        `json:"anchor,omitempty"`
	Match    string        `json:"match"`
	LineText string        `json:"lineText,omitempty"`
	Before   []LineSnippet `json:"before,omitempty"`
	After    []LineSnippet `json:"after,omitempty"`
	Line     int           `json:"line,omitempty"`
	Column   int           `json:"column,omitempty"`
}

// LineSnippet captures contextual lines around a match.
type LineSnippet struct {
	Text string `json:"text"`
	Line int    `json:"line"`
}

// Index searches a set of documents. It is safe for concurrent use; Replace
// swaps the whole set atomically.
type Index struct {
	logger *slog.Logger
	docs   []indexed
	mu     sync.RWMutex
}

type indexed struct {
	Document
	lines []string
}

// NewIndex builds an index over docs.
func NewIndex(logger *slog.Logger, docs []Document) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{logger: logger.With("component", "search")}
	idx.Replace(docs)
	return idx
}

// Replace swaps the indexed documents.
func (i *Index) Replace(docs []Document) {
	prepared := make([]indexed, len(docs))
	for n, d := range docs {
		prepared[n] = indexed{Document: d, lines: strings.Split(d.Text, "\n")}
	}
	i.mu.Lock()
	i.docs = prepared
	i.mu.Unlock()
	i.logger.Debug("index replaced", slog.Int("documents", len(docs)))
}

// Len returns the number of indexed documents.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Search returns the matches for query. Matching is smart-case: a query with
// an upper-case letter matches case-sensitively.
func (i *Index) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	m := newMatcher(query, opts.CaseSensitive || hasUpper(query))

	i.mu.RLock()
	docs := i.docs
	i.mu.RUnlock()

	var pages, sections, body []Result
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := m.find(d.Title); ok {
			pages = append(pages, Result{Kind: KindPage, Route: d.Route, URL: d.URL, Title: d.Title, Match: query})
		}
		for _, s := range d.Sections {
			if _, ok := m.find(s.Title); ok {
				sections = append(sections, Result{
					Kind: KindSection, Route: d.Route, URL: d.URL + "#" + s.ID, Title: d.Title,
					Section: s.Title, Anchor: s.ID, Match: query,
				})
			}
		}
		body = append(body, bodyMatches(d, m, opts.Context)...)
	}

	results := append(append(pages, sections...), body...)
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func bodyMatches(d indexed, m matcher, around int) []Result {
	var out []Result
	for n, line := range d.lines {
		col, ok := m.find(line)
		if !ok {
			continue
		}
		res := Result{
			Kind: KindBody, Route: d.Route, URL: d.URL, Title: d.Title,
			Match:    line[col : col+len(m.query)],
			LineText: line,
			Line:     n + 1,
			Column:   col + 1,
		}
		for k := max(0, n-around); k < n; k++ {
			res.Before = append(res.Before, LineSnippet{Line: k + 1, Text: d.lines[k]})
		}
		for k := n + 1; k <= n+around && k < len(d.lines); k++ {
			res.After = append(res.After, LineSnippet{Line: k + 1, Text: d.lines[k]})
		}
		out = append(out, res)
	}
	return out
}

type matcher struct {
	query         string
	caseSensitive bool
}

func newMatcher(query string, caseSensitive bool) matcher {
	if !caseSensitive {
		query = strings.ToLower(query)
	}
	return matcher{query: query, caseSensitive: caseSensitive}
}

// find returns the byte offset of the first match in s.
func (m matcher) find(s string) (int, bool) {
	if !m.caseSensitive {
		s = lowerASCIIPreserving(s)
	}
	idx := strings.Index(s, m.query)
	return idx, idx >= 0
}

// lowerASCIIPreserving lower-cases s without changing its byte length so
// offsets stay valid in the original string.
func lowerASCIIPreserving(s string) string {
	lower := strings.ToLower(s)
	if len(lower) == len(s) {
		return lower
	}
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
