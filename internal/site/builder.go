// Package site builds the documentation site in two passes.
//
// Pass one (Collect) renders every page through the pipeline and records its
// route, title, sections and exports in a Registry. Pass two (Write) lays the
// pages out with navigation built from the registry and writes the static
// bundle: one index.html per route plus nav.json, search.json and build.json.
package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sirily11/msbd5017-docs/internal/content/tree"
	"github.com/sirily11/msbd5017-docs/internal/highlight"
	"github.com/sirily11/msbd5017-docs/internal/metrics"
	"github.com/sirily11/msbd5017-docs/internal/pipeline"
	"github.com/sirily11/msbd5017-docs/internal/renderer"
)

// Config configures a Builder.
type Config struct {
	Logger     *slog.Logger
	Recorder   metrics.Recorder
	Diagrams   pipeline.DiagramRenderer
	Tokenizers *highlight.Cache
	// CodeTheme is the chroma style used for token colors; empty means
	// css-variables.
	CodeTheme string
	// BasePath prefixes every page URL ("/" when empty).
	BasePath      string
	ExcludeDirs   []string
	Concurrency   int
	IncludeHidden bool
}

// Builder renders a content directory into a site.
type Builder struct {
	renderer  *renderer.Service
	templates *templateRenderer
	recorder  metrics.Recorder
	logger    *slog.Logger
	cfg       Config
}

// New constructs a builder with its own renderer and pipeline.
func New(cfg Config) (*Builder, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.GOMAXPROCS(0)
	}
	cfg.BasePath = "/" + strings.Trim(cfg.BasePath, "/")

	tmpl, err := newTemplateRenderer(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	b := &Builder{
		templates: tmpl,
		recorder:  metrics.OrNoop(cfg.Recorder),
		logger:    cfg.Logger.With("component", "site"),
		cfg:       cfg,
	}
	p := pipeline.Default(pipeline.Options{
		Tokenizers: cfg.Tokenizers,
		Diagrams:   cfg.Diagrams,
		Recorder:   cfg.Recorder,
		Logger:     cfg.Logger,
		CodeTheme:  cfg.CodeTheme,
	})
	b.renderer = renderer.NewService(cfg.Logger,
		renderer.WithPipeline(p),
		renderer.WithLinkResolver(b.resolveLink),
		renderer.WithRecorder(cfg.Recorder),
	)
	return b, nil
}

// Renderer returns the renderer shared by every build.
func (b *Builder) Renderer() *renderer.Service {
	return b.renderer
}

// URL returns the public URL of route.
func (b *Builder) URL(route string) string {
	return path.Join(b.cfg.BasePath, route)
}

func (b *Builder) resolveLink(target string) (string, bool) {
	if !tree.IsContentFile(target) {
		return "", false
	}
	return b.URL(tree.RouteFor(target)), true
}

// Collected is the outcome of pass one.
type Collected struct {
	Tree     *tree.Node
	Registry *Registry
	Root     string
}

// Collect renders every page under contentDir and registers it. Pages render
// concurrently; the registry keeps navigation order. The first failing page
// fails the pass.
func (b *Builder) Collect(ctx context.Context, contentDir string) (*Collected, error) {
	root, err := filepath.Abs(contentDir)
	if err != nil {
		return nil, fmt.Errorf("resolve content dir: %w", err)
	}

	nav, err := tree.Build(ctx, root, tree.Options{
		ExcludeDirs:   b.cfg.ExcludeDirs,
		IncludeHidden: b.cfg.IncludeHidden,
	})
	if err != nil {
		return nil, fmt.Errorf("build content tree: %w", err)
	}

	pages := tree.Pages(nav)
	entries := make([]*Entry, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, node := range pages {
		g.Go(func() error {
			entry, err := b.collectPage(gctx, root, node)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reg := NewRegistry()
	for i, node := range pages {
		entry := entries[i]
		node.Title = entry.Title
		node.Sections = entry.Sections
		if meta := entry.Document.Metadata; !meta.IsZero() {
			node.Metadata = &meta
		}
		if err := reg.Add(entry); err != nil {
			return nil, err
		}
	}

	b.logger.Debug("collect complete", slog.Int("pages", reg.Len()), slog.String("root", root))
	return &Collected{Tree: nav, Registry: reg, Root: root}, nil
}

func (b *Builder) collectPage(ctx context.Context, root string, node *tree.Node) (*Entry, error) {
	absPath := filepath.Join(root, filepath.FromSlash(node.Source))
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", node.Source, err)
	}
	raw, err := os.ReadFile(absPath) //nolint:gosec // absPath constructed from validated root
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", node.Source, err)
	}

	doc, err := b.renderer.Render(ctx, node.Source, info.ModTime(), raw)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Route:       node.Route,
		Source:      node.Source,
		Title:       firstNonEmpty(doc.Metadata.Title, node.Title),
		Description: doc.Metadata.Description,
		Sections:    doc.Sections,
		Frontmatter: doc.Frontmatter,
		Bindings:    doc.Bindings,
		Document:    doc,
		Modified:    doc.Modified,
	}, nil
}

// Result summarizes a finished build.
type Result struct {
	BuildID   string
	OutputDir string
	Documents int
	Duration  time.Duration
}

// Build runs both passes and records the build outcome.
func (b *Builder) Build(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	res, err := b.build(ctx, opts)
	elapsed := time.Since(start)
	b.recorder.ObserveBuildDuration(elapsed)

	switch {
	case err == nil:
		b.recorder.IncBuildOutcome(metrics.BuildSuccess)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		b.recorder.IncBuildOutcome(metrics.BuildCanceled)
	default:
		b.recorder.IncBuildOutcome(metrics.BuildFailed)
	}
	if err != nil {
		return nil, err
	}
	res.Duration = elapsed
	return res, nil
}

func (b *Builder) build(ctx context.Context, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.ContentDir) == "" {
		return nil, errors.New("content directory is required")
	}
	collected, err := b.Collect(ctx, opts.ContentDir)
	if err != nil {
		return nil, err
	}
	return b.Write(ctx, opts, collected)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
