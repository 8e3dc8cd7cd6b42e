// Package markup parses content files (markdown with YAML frontmatter, top-level
// export/import statements and heading annotations) into hast trees.
package markup

import (
	"fmt"

	"github.com/yuin/goldmark"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/sirily11/msbd5017-docs/internal/esm"
	"github.com/sirily11/msbd5017-docs/internal/hast"
)

// Root data keys.
const (
	DataFrontmatter = "frontmatter"
	DataPath        = "path"
	// DataBinding holds the *esm.Binding parsed from an ESM node's source.
	DataBinding = "binding"
)

var docPathKey = parser.NewContextKey()

// Parser turns source text into a hast tree. It is safe for concurrent use.
type Parser struct {
	md goldmark.Markdown
}

// Option configures a Parser.
type Option func(*config)

type config struct {
	links LinkResolver
}

// WithLinkResolver rewrites relative links to other content files.
func WithLinkResolver(resolve LinkResolver) Option {
	return func(c *config) {
		c.links = resolve
	}
}

// New builds a parser with GitHub-flavored markdown, frontmatter, heading
// attributes and annotations, and top-level ESM statements.
func New(opts ...Option) *Parser {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	transformers := []util.PrioritizedValue{}
	if cfg.links != nil {
		transformers = append(transformers, util.Prioritized(&linkTransformer{resolve: cfg.links}, 100))
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			goldmarkmeta.Meta,
		),
		goldmark.WithParserOptions(
			parser.WithAttribute(),
			parser.WithBlockParsers(
				util.Prioritized(&esmBlockParser{}, 50),
				util.Prioritized(newAnnotatedHeadingParser(), 99),
			),
			parser.WithASTTransformers(transformers...),
		),
	)
	return &Parser{md: md}
}

// Parse converts src into a tree. The root carries the frontmatter object
// (empty when the file has none) under DataFrontmatter.
func (p *Parser) Parse(path string, src []byte) (*hast.Node, error) {
	pc := parser.NewContext()
	pc.Set(docPathKey, path)

	doc := p.md.Parser().Parse(text.NewReader(src), parser.WithContext(pc))

	items, err := goldmarkmeta.TryGetItems(pc)
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter %s: %w", path, err)
	}
	frontmatter := esm.NewObject()
	if items != nil {
		v, err := esm.FromGo(items)
		if err != nil {
			return nil, fmt.Errorf("convert frontmatter %s: %w", path, err)
		}
		if obj, ok := v.(*esm.Object); ok {
			frontmatter = obj
		}
	}

	conv := &converter{source: src}
	root, err := conv.document(doc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	root.SetData(DataFrontmatter, frontmatter)
	root.SetData(DataPath, path)
	return root, nil
}

// Frontmatter returns the frontmatter object stored on a parsed root.
func Frontmatter(root *hast.Node) *esm.Object {
	if root == nil {
		return esm.NewObject()
	}
	if obj, ok := root.Data[DataFrontmatter].(*esm.Object); ok && obj != nil {
		return obj
	}
	return esm.NewObject()
}
