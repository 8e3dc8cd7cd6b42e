package pipeline

import (
	"fmt"

	"github.com/sirily11/msbd5017-docs/internal/hast"
	"github.com/sirily11/msbd5017-docs/internal/highlight"
)

// Tokenize stores each code block's raw text in its `code` property and, for
// blocks with a `language`, replaces the text with highlighted span markup.
//
// The tokenizer is fetched from Cache on the first block that needs it, so
// documents without highlighted code never build one.
type Tokenize struct {
	Cache *highlight.Cache
	Theme string
}

// Name implements Stage.
func (Tokenize) Name() string { return "tokenize" }

// Apply implements Stage.
func (t Tokenize) Apply(doc *Document) error {
	var tokenizer highlight.Tokenizer
	return hast.Elements(doc.Tree, func(pre, _ *hast.Node) error {
		if pre.Tag != "pre" {
			return nil
		}
		code := codeChild(pre)
		if code == nil {
			return nil
		}

		raw := hast.ToString(code)
		if !pre.HasProp("code") {
			pre.SetProp("code", raw)
		}

		lang := pre.Prop("language")
		if lang == "" || pre.HasProp("diagram") {
			return nil
		}
		if len(code.Children) != 1 || code.Children[0].Kind != hast.KindText {
			return nil
		}

		if tokenizer == nil {
			tok, err := t.tokenizer()
			if err != nil {
				return err
			}
			tokenizer = tok
		}
		lines, err := tokenizer.Tokenize(raw, lang)
		if err != nil {
			return fmt.Errorf("highlight %s code block in %s: %w", lang, doc.Path, err)
		}

		text := code.Children[0]
		text.Kind = hast.KindRaw
		text.Value = highlight.Markup(lines)
		return nil
	})
}

func (t Tokenize) tokenizer() (highlight.Tokenizer, error) {
	cache := t.Cache
	if cache == nil {
		cache = highlight.Default()
	}
	theme := t.Theme
	if theme == "" {
		theme = highlight.CSSVariables
	}
	tok, err := cache.Get(theme)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return tok, nil
}
