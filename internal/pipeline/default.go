package pipeline

import (
	"log/slog"
	"time"

	"github.com/sirily11/msbd5017-docs/internal/highlight"
	"github.com/sirily11/msbd5017-docs/internal/metrics"
)

// Options configures the standard stage list.
type Options struct {
	Tokenizers *highlight.Cache
	Diagrams   DiagramRenderer
	Recorder   metrics.Recorder
	Logger     *slog.Logger
	Bindings   BindingFunc
	CodeTheme  string
}

// DefaultStages returns the standard stages in run order.
func DefaultStages(opts Options) []Stage {
	bindings := opts.Bindings
	if bindings == nil {
		bindings = SectionExports
	}
	return []Stage{
		CodeBlocks{},
		Diagrams{Renderer: opts.Diagrams, Logger: opts.Logger, Timeout: 30 * time.Second},
		Tokenize{Cache: opts.Tokenizers, Theme: opts.CodeTheme},
		Slugs{Logger: opts.Logger},
		HeadingIDs{},
		Exports{Bindings: bindings},
	}
}

// Default builds a pipeline with DefaultStages.
func Default(opts Options) *Pipeline {
	return New(DefaultStages(opts), WithRecorder(opts.Recorder), WithLogger(opts.Logger))
}
