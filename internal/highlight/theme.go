package highlight

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
)

// CSS custom properties used by the CSSVariables theme.
const (
	VarForeground       = "--code-foreground"
	VarBackground       = "--code-background"
	VarKeyword          = "--code-token-keyword"
	VarConstant         = "--code-token-constant"
	VarString           = "--code-token-string"
	VarStringExpression = "--code-token-string-expression"
	VarComment          = "--code-token-comment"
	VarFunction         = "--code-token-function"
	VarParameter        = "--code-token-parameter"
	VarPunctuation      = "--code-token-punctuation"
)

// Variable returns the custom property that colors tokens of type tt.
func Variable(tt chroma.TokenType) string {
	switch {
	case tt.Category() == chroma.Comment:
		return VarComment
	case tt == chroma.KeywordConstant:
		return VarConstant
	case tt.Category() == chroma.Keyword, tt == chroma.NameTag:
		return VarKeyword
	case tt == chroma.LiteralStringInterpol:
		return VarStringExpression
	case tt.SubCategory() == chroma.LiteralString:
		return VarString
	case tt.Category() == chroma.Literal:
		return VarConstant
	case tt.SubCategory() == chroma.NameFunction, tt == chroma.NameClass:
		return VarFunction
	case tt.SubCategory() == chroma.NameBuiltin, tt == chroma.NameConstant:
		return VarConstant
	case tt.SubCategory() == chroma.NameVariable, tt == chroma.NameAttribute:
		return VarParameter
	case tt.Category() == chroma.Operator, tt.Category() == chroma.Punctuation:
		return VarPunctuation
	default:
		return VarForeground
	}
}

var themeTokens = []struct {
	name string
	tt   chroma.TokenType
}{
	{VarKeyword, chroma.Keyword},
	{VarConstant, chroma.LiteralNumber},
	{VarString, chroma.LiteralString},
	{VarStringExpression, chroma.LiteralStringInterpol},
	{VarComment, chroma.Comment},
	{VarFunction, chroma.NameFunction},
	{VarParameter, chroma.NameVariable},
	{VarPunctuation, chroma.Punctuation},
}

// ThemeCSS renders a :root block assigning style's colors to the CSSVariables
// custom properties. Token colors the style leaves unset use the foreground.
func ThemeCSS(style *chroma.Style) string {
	bg := style.Get(chroma.Background)
	fg := "inherit"
	if text := style.Get(chroma.Text); text.Colour.IsSet() {
		fg = text.Colour.String()
	} else if bg.Colour.IsSet() {
		fg = bg.Colour.String()
	}

	var b strings.Builder
	b.WriteString(":root {\n")
	fmt.Fprintf(&b, "  %s: %s;\n", VarForeground, fg)
	if bg.Background.IsSet() {
		fmt.Fprintf(&b, "  %s: %s;\n", VarBackground, bg.Background.String())
	}
	for _, tok := range themeTokens {
		color := fg
		if entry := style.Get(tok.tt); entry.Colour.IsSet() {
			color = entry.Colour.String()
		}
		fmt.Fprintf(&b, "  %s: %s;\n", tok.name, color)
	}
	b.WriteString("}\n")
	return b.String()
}
