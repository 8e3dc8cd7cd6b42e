// Package d2 compiles D2 diagram sources into SVG with the embedded compiler.
package d2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2layouts/d2elklayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	d2log "oss.terrastruct.com/d2/lib/log"
	"oss.terrastruct.com/d2/lib/textmeasure"
)

// Result captures the outcome of a render attempt.
type Result struct {
	SVG      string
	Duration time.Duration
}

// ErrEmptyDiagram is returned when the supplied diagram body is empty.
var ErrEmptyDiagram = errors.New("empty d2 diagram")

// DefaultTimeout bounds a single compile when Options leave it unset.
const DefaultTimeout = 12 * time.Second

// Renderer performs server-side D2 compilation. Layout choices are left to the
// source diagram (via D2 config blocks).
type Renderer struct {
	logger  *slog.Logger
	timeout time.Duration
	themeID int64
}

// Options configure the renderer.
type Options struct {
	Timeout time.Duration
	// ThemeID selects a d2 theme; zero keeps the dark flagship theme.
	ThemeID int64
}

// New creates a renderer. If logger is nil, the default slog logger is used.
func New(logger *slog.Logger, opts *Options) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Renderer{
		logger:  logger.With("component", "d2"),
		timeout: DefaultTimeout,
		themeID: d2themescatalog.DarkFlagshipTerrastruct.ID,
	}
	if opts != nil {
		if opts.Timeout > 0 {
			r.timeout = opts.Timeout
		}
		if opts.ThemeID != 0 {
			r.themeID = opts.ThemeID
		}
	}
	return r
}

// RenderSVG compiles source and returns only the SVG markup.
func (r *Renderer) RenderSVG(ctx context.Context, source string) (string, error) {
	res, err := r.Render(ctx, source)
	if err != nil {
		return "", err
	}
	return res.SVG, nil
}

// Render compiles the given D2 script into SVG, respecting any layout directives
// defined inside the diagram itself.
func (r *Renderer) Render(ctx context.Context, source string) (Result, error) {
	if strings.TrimSpace(source) == "" {
		return Result{}, ErrEmptyDiagram
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = d2log.With(ctx, r.logger)
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return Result{}, fmt.Errorf("init ruler: %w", err)
	}

	themeID := r.themeID
	darkThemeID := r.themeID
	pad := int64(d2svg.DEFAULT_PADDING)
	renderOpts := &d2svg.RenderOpts{
		ThemeID:     &themeID,
		DarkThemeID: &darkThemeID,
		Pad:         &pad,
	}

	start := time.Now()
	compileOpts := &d2lib.CompileOptions{
		Ruler:          ruler,
		LayoutResolver: layoutResolver,
	}

	diagram, _, err := d2lib.Compile(ctx, source, compileOpts, renderOpts)
	if err != nil {
		return Result{}, fmt.Errorf("compile d2: %w", err)
	}
	if diagram == nil {
		return Result{}, errors.New("d2 compiler returned nil diagram")
	}

	svg, err := d2svg.Render(diagram, renderOpts)
	if err != nil {
		return Result{}, fmt.Errorf("render svg: %w", err)
	}

	elapsed := time.Since(start)
	r.logger.Debug("diagram rendered", slog.Duration("duration", elapsed), slog.Int("bytes", len(svg)))
	return Result{SVG: string(svg), Duration: elapsed}, nil
}

func layoutResolver(engine string) (d2graph.LayoutGraph, error) {
	switch strings.ToLower(engine) {
	case "", "dagre":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2dagrelayout.Layout(ctx, g, nil)
		}, nil
	case "elk":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2elklayout.Layout(ctx, g, nil)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported d2 layout %q", engine)
	}
}
