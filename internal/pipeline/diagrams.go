package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sirily11/msbd5017-docs/internal/hast"
)

// Diagram kinds recorded in the `diagram` property.
const (
	DiagramD2      = "d2"
	DiagramMermaid = "mermaid"
)

// DiagramRenderer renders diagram source into SVG markup.
type DiagramRenderer interface {
	RenderSVG(ctx context.Context, source string) (string, error)
}

// Diagrams marks d2 and mermaid code blocks as diagrams so they are not
// highlighted. With a Renderer, d2 blocks are rendered to SVG (`diagram-svg`);
// a failed render is recorded in `diagram-error` and does not fail the
// document. Mermaid renders in the browser.
type Diagrams struct {
	Renderer DiagramRenderer
	Logger   *slog.Logger
	Timeout  time.Duration
}

// Name implements Stage.
func (Diagrams) Name() string { return "diagrams" }

// Apply implements Stage.
func (d Diagrams) Apply(doc *Document) error {
	return hast.Elements(doc.Tree, func(pre, _ *hast.Node) error {
		if pre.Tag != "pre" {
			return nil
		}
		switch strings.ToLower(pre.Prop("language")) {
		case DiagramMermaid:
			pre.SetProp("diagram", DiagramMermaid)
		case DiagramD2:
			pre.SetProp("diagram", DiagramD2)
			code := codeChild(pre)
			if d.Renderer == nil || code == nil {
				return nil
			}
			d.render(doc, pre, hast.ToString(code))
		}
		return nil
	})
}

func (d Diagrams) render(doc *Document, pre *hast.Node, source string) {
	ctx := context.Background()
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	svg, err := d.Renderer.RenderSVG(ctx, source)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Warn("d2: render failed", slog.String("path", doc.Path), slog.Any("err", err))
		}
		pre.SetProp("diagram-error", err.Error())
		return
	}
	pre.SetProp("diagram-svg", svg)
}
