package site

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirily11/msbd5017-docs/internal/esm"
	"github.com/sirily11/msbd5017-docs/internal/pipeline"
	"github.com/sirily11/msbd5017-docs/internal/renderer"
)

// ErrDuplicateRoute is returned when two content files map to the same route.
var ErrDuplicateRoute = errors.New("duplicate route")

// Entry is everything pass one learned about a page.
type Entry struct {
	Modified    time.Time          `json:"modified"`
	Frontmatter *esm.Object        `json:"frontmatter"`
	Bindings    *pipeline.Bindings `json:"-"`
	Document    renderer.Document  `json:"-"`
	Route       string             `json:"route"`
	Source      string             `json:"source"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Sections    []renderer.Section `json:"sections"`
}

// Registry holds the entries of one build, keyed by route. It is safe for
// concurrent use.
type Registry struct {
	entries map[string]*Entry
	order   []string
	mu      sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Add registers e under its route.
func (r *Registry) Add(e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[e.Route]; ok {
		return fmt.Errorf("%w %s: %s and %s", ErrDuplicateRoute, e.Route, existing.Source, e.Source)
	}
	r.entries[e.Route] = e
	r.order = append(r.order, e.Route)
	return nil
}

// Get returns the entry for route.
func (r *Registry) Get(route string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[route]
	return e, ok
}

// Entries returns every entry in registration order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.order))
	for _, route := range r.order {
		out = append(out, r.entries[route])
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Sections returns the sections of the page at route.
func (r *Registry) Sections(route string) ([]renderer.Section, bool) {
	e, ok := r.Get(route)
	if !ok {
		return nil, false
	}
	return e.Sections, true
}
