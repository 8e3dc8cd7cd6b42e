// Package renderer turns content files into HTML pages through the markup
// parser and the transform pipeline, caching results by path and modification time.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sirily11/msbd5017-docs/internal/esm"
	"github.com/sirily11/msbd5017-docs/internal/markup"
	"github.com/sirily11/msbd5017-docs/internal/metrics"
	"github.com/sirily11/msbd5017-docs/internal/pipeline"
)

// Metadata captures the well-known frontmatter fields.
type Metadata struct {
	Raw         map[string]any `json:"raw,omitempty"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// IsZero reports whether the metadata carries any meaningful values.
func (m Metadata) IsZero() bool {
	if m.Title != "" || m.Description != "" || len(m.Tags) > 0 {
		return false
	}
	return len(m.Raw) == 0
}

// Document is a rendered content file.
//
//nolint:govet // field order optimized for readability, not memory
type Document struct {
	HTML        string
	Text        string
	Metadata    Metadata
	Sections    []Section
	Bindings    *pipeline.Bindings
	Frontmatter *esm.Object
	Modified    time.Time
	Raw         string
}

type cacheEntry struct {
	modTime time.Time
	doc     Document
}

// Service renders content files. Rendered documents are cached by path and
// modification time; a zero modTime is never served from cache.
type Service struct {
	parser   *markup.Parser
	pipeline *pipeline.Pipeline
	recorder metrics.Recorder
	logger   *slog.Logger
	cache    sync.Map // map[string]cacheEntry
}

// Option configures a Service.
type Option func(*options)

type options struct {
	pipeline *pipeline.Pipeline
	links    markup.LinkResolver
	recorder metrics.Recorder
}

// WithPipeline replaces the default transform pipeline.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(o *options) { o.pipeline = p }
}

// WithLinkResolver rewrites relative links between content files.
func WithLinkResolver(resolve markup.LinkResolver) Option {
	return func(o *options) { o.links = resolve }
}

// WithRecorder counts cache hits.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// NewService constructs a renderer. If logger is nil, the default slog logger
// is used. Without WithPipeline the standard stages run with the shared
// tokenizer cache and no diagram renderer.
func NewService(logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.pipeline == nil {
		o.pipeline = pipeline.Default(pipeline.Options{Logger: logger, Recorder: o.recorder})
	}

	var parserOpts []markup.Option
	if o.links != nil {
		parserOpts = append(parserOpts, markup.WithLinkResolver(o.links))
	}

	return &Service{
		parser:   markup.New(parserOpts...),
		pipeline: o.pipeline,
		recorder: metrics.OrNoop(o.recorder),
		logger:   logger.With("component", "renderer"),
	}
}

// Render parses content, runs the pipeline and serializes the result.
// The path is used for cache keys, link resolution and error messages.
func (s *Service) Render(ctx context.Context, path string, modTime time.Time, content []byte) (Document, error) {
	if entry, ok := s.cache.Load(path); ok {
		if cached, ok := entry.(cacheEntry); ok {
			if !cached.modTime.IsZero() && modTime.Equal(cached.modTime) {
				s.recorder.IncCacheHit()
				return cached.doc, nil
			}
		}
	}

	tree, err := s.parser.Parse(path, content)
	if err != nil {
		return Document{}, err
	}
	pdoc := &pipeline.Document{Tree: tree, Path: path}
	if err := s.pipeline.Run(ctx, pdoc); err != nil {
		return Document{}, err
	}

	sections := s.documentSections(pdoc)

	out, err := HTML(tree)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}

	frontmatter := markup.Frontmatter(tree)
	doc := Document{
		HTML:        out,
		Text:        PlainText(tree),
		Metadata:    extractMetadata(frontmatter),
		Sections:    sections,
		Bindings:    pdoc.Bindings,
		Frontmatter: frontmatter,
		Modified:    modTime,
		Raw:         string(content),
	}

	s.cache.Store(path, cacheEntry{modTime: modTime, doc: doc})
	s.logger.Debug("document rendered", slog.String("path", path), slog.Int("sections", len(sections)))
	return doc, nil
}

// Invalidate removes the cached entry for the given path.
func (s *Service) Invalidate(path string) {
	s.cache.Delete(path)
}

// Purge drops every cached entry.
func (s *Service) Purge() {
	s.cache.Range(func(key, _ any) bool {
		s.cache.Delete(key)
		return true
	})
}

// documentSections evaluates the document's `sections` export, authored or
// generated. An authored export that is not a literal array of objects, such
// as a reference to another identifier, falls back to the extracted headings.
func (s *Service) documentSections(doc *pipeline.Document) []Section {
	extracted := func() []Section { return SectionsFromPipeline(pipeline.Sections(doc.Tree)) }

	v, err := pipeline.Exported(doc.Tree, "sections")
	if errors.Is(err, pipeline.ErrNotExported) {
		return extracted()
	}
	if err == nil {
		var sections []Section
		if sections, err = SectionsFromValue(v); err == nil {
			return sections
		}
	}
	s.logger.Warn("sections export not evaluable, using headings",
		slog.String("path", doc.Path),
		slog.Any("err", err))
	return extracted()
}

func extractMetadata(frontmatter *esm.Object) Metadata {
	var meta Metadata
	if frontmatter.Len() == 0 {
		return meta
	}

	raw, _ := esm.ToGo(frontmatter).(map[string]any)
	meta.Raw = raw
	frontmatter.Each(func(key string, v esm.Value) {
		switch key {
		case "title":
			if s, ok := v.(esm.String); ok {
				meta.Title = string(s)
			}
		case "description", "summary":
			if s, ok := v.(esm.String); ok {
				meta.Description = string(s)
			}
		case "tags", "keywords":
			meta.Tags = toStringSlice(v)
		}
	})
	return meta
}

func toStringSlice(v esm.Value) []string {
	switch val := v.(type) {
	case esm.Array:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(esm.String); ok {
				out = append(out, string(s))
			}
		}
		return out
	case esm.String:
		return []string{string(val)}
	default:
		return nil
	}
}
