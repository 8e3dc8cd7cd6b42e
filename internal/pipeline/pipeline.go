// Package pipeline runs the ordered transforms that turn a parsed content
// document into a page tree annotated with anchors, highlighted snippets and
// exported metadata.
//
// Stages run strictly in order and mutate the document tree in place:
//
//	CodeBlocks -> Diagrams -> Tokenize -> Slugs -> HeadingIDs -> Exports
//
// Slugs must finish before section extraction (inside Exports) and CodeBlocks
// before Tokenize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sirily11/msbd5017-docs/internal/hast"
	"github.com/sirily11/msbd5017-docs/internal/metrics"
)

// Document is one content file moving through the pipeline.
type Document struct {
	Tree *hast.Node
	// Bindings is the export set the Exports stage assembled.
	Bindings *Bindings
	Path     string
	Route    string
}

// Stage is one transform over a document.
type Stage interface {
	Name() string
	Apply(doc *Document) error
}

// StageError reports which stage failed on which file.
type StageError struct {
	Err   error
	Stage string
	Path  string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %s: %v", e.Path, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline applies stages in order. It holds no per-document state and is safe
// for concurrent use when its stages are.
type Pipeline struct {
	recorder metrics.Recorder
	logger   *slog.Logger
	stages   []Stage
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder records stage durations and results.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = metrics.OrNoop(r)
	}
}

// WithLogger sets the logger. A nil logger means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New returns a pipeline running stages in the given order.
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:   append([]Stage(nil), stages...),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// Stages returns the stage names in run order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run applies every stage to doc. Cancellation is checked once, before the
// first stage; a started document always runs to completion or failure.
func (p *Pipeline) Run(ctx context.Context, doc *Document) error {
	if doc == nil || doc.Tree == nil {
		return errors.New("pipeline: document has no tree")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, stage := range p.stages {
		start := time.Now()
		err := stage.Apply(doc)
		elapsed := time.Since(start)
		p.recorder.ObserveStageDuration(stage.Name(), elapsed)

		if err != nil {
			p.recorder.IncStageResult(stage.Name(), metrics.ResultFatal)
			p.logger.Debug("stage failed",
				slog.String("stage", stage.Name()),
				slog.String("path", doc.Path),
				slog.Any("err", err))
			return &StageError{Stage: stage.Name(), Path: doc.Path, Err: err}
		}
		p.recorder.IncStageResult(stage.Name(), metrics.ResultSuccess)
	}
	p.recorder.IncDocuments(1)
	return nil
}
