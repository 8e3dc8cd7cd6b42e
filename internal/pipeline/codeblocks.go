package pipeline

import (
	"strings"

	"github.com/sirily11/msbd5017-docs/internal/hast"
)

const languagePrefix = "language-"

// CodeBlocks lifts the language of a `code` element (its `language-<lang>`
// class) onto the enclosing element's `language` property.
type CodeBlocks struct{}

// Name implements Stage.
func (CodeBlocks) Name() string { return "code-blocks" }

// Apply implements Stage.
func (CodeBlocks) Apply(doc *Document) error {
	return hast.Elements(doc.Tree, func(el, parent *hast.Node) error {
		if el.Tag != "code" || !parent.IsElement() {
			return nil
		}
		for _, class := range hast.ClassList(el) {
			if lang, ok := strings.CutPrefix(class, languagePrefix); ok && lang != "" {
				parent.SetProp("language", lang)
				return nil
			}
		}
		return nil
	})
}

// codeChild returns the `code` element of a `pre` block when it is the only
// meaningful child, ignoring whitespace-only text.
func codeChild(pre *hast.Node) *hast.Node {
	var code *hast.Node
	for _, child := range pre.Children {
		switch {
		case child.Kind == hast.KindText && strings.TrimSpace(child.Value) == "":
			continue
		case child.IsElement("code") && code == nil:
			code = child
		default:
			return nil
		}
	}
	return code
}
