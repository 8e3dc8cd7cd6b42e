// Package highlight tokenizes code snippets into colored lines.
package highlight

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// CSSVariables is the theme whose colors are CSS custom properties, so the
// page stylesheet decides the palette.
const CSSVariables = "css-variables"

var (
	// ErrUnknownLanguage is returned for languages no lexer is registered for.
	ErrUnknownLanguage = errors.New("unknown language")
	// ErrUnknownTheme is returned for theme names that are neither CSSVariables
	// nor a registered chroma style.
	ErrUnknownTheme = errors.New("unknown theme")
)

// Token is one colored fragment of a line.
type Token struct {
	Content string
	Color   string
}

// Line is the ordered tokens of a single source line, without the newline.
type Line []Token

// Tokenizer splits code into colored lines.
type Tokenizer interface {
	Tokenize(code, lang string) ([]Line, error)
}

// Chroma tokenizes with chroma lexers and one fixed theme.
type Chroma struct {
	lexers map[string]chroma.Lexer
	style  *chroma.Style
	theme  string
}

var _ Tokenizer = (*Chroma)(nil)

// NewChroma indexes every registered lexer by name and alias and resolves theme.
func NewChroma(theme string) (*Chroma, error) {
	c := &Chroma{theme: theme, lexers: make(map[string]chroma.Lexer)}
	if theme != CSSVariables {
		style, ok := styles.Registry[strings.ToLower(theme)]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownTheme, theme)
		}
		c.style = style
	}

	for _, lexer := range lexers.GlobalLexerRegistry.Lexers {
		cfg := lexer.Config()
		c.lexers[strings.ToLower(cfg.Name)] = lexer
		for _, alias := range cfg.Aliases {
			c.lexers[strings.ToLower(alias)] = lexer
		}
	}
	return c, nil
}

// Theme returns the theme name the tokenizer was built with.
func (c *Chroma) Theme() string {
	return c.theme
}

// Languages returns the number of indexed names and aliases.
func (c *Chroma) Languages() int {
	return len(c.lexers)
}

// Tokenize implements Tokenizer. A single trailing newline in code is ignored.
func (c *Chroma) Tokenize(code, lang string) ([]Line, error) {
	lexer := c.lookup(lang)
	if lexer == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownLanguage, lang)
	}

	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, strings.TrimSuffix(code, "\n"))
	if err != nil {
		return nil, fmt.Errorf("tokenise %s: %w", lang, err)
	}

	split := chroma.SplitTokensIntoLines(iterator.Tokens())
	out := make([]Line, 0, len(split))
	for _, tokens := range split {
		line := make(Line, 0, len(tokens))
		for _, tok := range tokens {
			content := strings.TrimSuffix(tok.Value, "\n")
			if content == "" {
				continue
			}
			line = append(line, Token{Content: content, Color: c.color(tok.Type)})
		}
		out = append(out, line)
	}
	return out, nil
}

func (c *Chroma) lookup(lang string) chroma.Lexer {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return nil
	}
	if lexer, ok := c.lexers[lang]; ok {
		return lexer
	}
	return lexers.Get(lang)
}

func (c *Chroma) color(tt chroma.TokenType) string {
	if c.style == nil {
		return "var(" + Variable(tt) + ")"
	}
	if entry := c.style.Get(tt); entry.Colour.IsSet() {
		return entry.Colour.String()
	}
	if bg := c.style.Get(chroma.Background); bg.Colour.IsSet() {
		return bg.Colour.String()
	}
	return "currentColor"
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes & < > " and ' for embedding in markup.
func EscapeHTML(s string) string {
	return escaper.Replace(s)
}

// Markup serializes lines into one <span> per line joined by newlines, each
// token wrapped in a <span> carrying its color.
func Markup(lines []Line) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("<span>")
		for _, tok := range line {
			b.WriteString(`<span style="color:`)
			b.WriteString(EscapeHTML(tok.Color))
			b.WriteString(`">`)
			b.WriteString(EscapeHTML(tok.Content))
			b.WriteString("</span>")
		}
		b.WriteString("</span>")
	}
	return b.String()
}
