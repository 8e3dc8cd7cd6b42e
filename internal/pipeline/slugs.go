package pipeline

import (
	"log/slog"

	"github.com/sirily11/msbd5017-docs/internal/hast"
	"github.com/sirily11/msbd5017-docs/internal/slug"
)

// Slugs gives every h2 without an id a slug of its text, numbered x, x-1, x-2
// on repeats within the document. Existing ids are never changed and never
// reserve their text in the registry, so a generated slug may repeat an
// author id; each such clash is logged as a warning.
type Slugs struct {
	Logger *slog.Logger
}

// Name implements Stage.
func (Slugs) Name() string { return "slugs" }

// Apply implements Stage.
func (s Slugs) Apply(doc *Document) error {
	authorIDs := make(map[string]bool)
	_ = hast.Elements(doc.Tree, func(el, _ *hast.Node) error {
		if id := el.Prop("id"); id != "" {
			authorIDs[id] = true
		}
		return nil
	})

	counter := slug.NewCounter()
	return hast.Walk(doc.Tree, hast.VisitorFuncs{
		Element: func(el, _ *hast.Node) (hast.WalkStatus, error) {
			if el.Tag != "h2" {
				return hast.WalkContinue, nil
			}
			if !el.HasProp("id") {
				id := counter.Slug(hast.ToString(el))
				el.SetProp("id", id)
				if authorIDs[id] {
					s.logger().Warn("heading slug repeats an explicit id",
						slog.String("path", doc.Path),
						slog.String("id", id))
				}
			}
			return hast.WalkSkipChildren, nil
		},
	})
}

func (s Slugs) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// HeadingIDs gives the remaining headings (h1, h3-h6) GitHub-style ids that do
// not collide with any id already in the document.
type HeadingIDs struct{}

// Name implements Stage.
func (HeadingIDs) Name() string { return "heading-ids" }

// Apply implements Stage.
func (HeadingIDs) Apply(doc *Document) error {
	slugger := slug.NewGitHub()
	_ = hast.Elements(doc.Tree, func(el, _ *hast.Node) error {
		if id := el.Prop("id"); id != "" {
			slugger.Reserve(id)
		}
		return nil
	})

	return hast.Elements(doc.Tree, func(el, _ *hast.Node) error {
		if hast.HeadingRank(el) == 0 || el.HasProp("id") {
			return nil
		}
		el.SetProp("id", slugger.Slug(hast.ToString(el)))
		return nil
	})
}
