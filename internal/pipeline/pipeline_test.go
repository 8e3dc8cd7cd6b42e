package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirily11/msbd5017-docs/internal/esm"
	"github.com/sirily11/msbd5017-docs/internal/hast"
	"github.com/sirily11/msbd5017-docs/internal/highlight"
	"github.com/sirily11/msbd5017-docs/internal/markup"
	"github.com/sirily11/msbd5017-docs/internal/metrics"
	"github.com/sirily11/msbd5017-docs/internal/pipeline"
)

// echoTokenizer returns each line of code as a single token.
type echoTokenizer struct {
	mu    sync.Mutex
	calls []string
}

func (e *echoTokenizer) Tokenize(code, lang string) ([]highlight.Line, error) {
	e.mu.Lock()
	e.calls = append(e.calls, lang)
	e.mu.Unlock()
	if lang == "unknownlang123" {
		return nil, highlight.ErrUnknownLanguage
	}
	var lines []highlight.Line
	for _, l := range strings.Split(strings.TrimSuffix(code, "\n"), "\n") {
		lines = append(lines, highlight.Line{{Content: l, Color: "#abcdef"}})
	}
	return lines, nil
}

func fakeCache(tok highlight.Tokenizer, builds *int) *highlight.Cache {
	return highlight.NewCache(func(string) (highlight.Tokenizer, error) {
		if builds != nil {
			*builds++
		}
		return tok, nil
	})
}

func parse(t *testing.T, path, src string) *pipeline.Document {
	t.Helper()
	tree, err := markup.New().Parse(path, []byte(src))
	require.NoError(t, err)
	return &pipeline.Document{Path: path, Route: "/docs/" + strings.TrimSuffix(path, ".md"), Tree: tree}
}

func run(t *testing.T, doc *pipeline.Document, opts pipeline.Options) error {
	t.Helper()
	return pipeline.Default(opts).Run(context.Background(), doc)
}

func headingIDs(tree *hast.Node, tag string) []string {
	var ids []string
	_ = hast.Elements(tree, func(el, _ *hast.Node) error {
		if el.Tag == tag {
			ids = append(ids, el.Prop("id"))
		}
		return nil
	})
	return ids
}

func esmSources(tree *hast.Node) []string {
	var out []string
	for _, child := range tree.Children {
		if child.Kind == hast.KindESM {
			out = append(out, child.Value)
		}
	}
	return out
}

func findPre(tree *hast.Node) *hast.Node {
	var pre *hast.Node
	_ = hast.Elements(tree, func(el, _ *hast.Node) error {
		if el.Tag == "pre" && pre == nil {
			pre = el
		}
		return nil
	})
	return pre
}

func TestEndToEndSetupExample(t *testing.T) {
	t.Parallel()

	doc := parse(t, "setup.md", "## Setup\n\n## Setup\n\n```js\nconst x = 1;\n```\n")
	require.NoError(t, run(t, doc, pipeline.Options{Tokenizers: highlight.NewCache(nil)}))

	assert.Equal(t, []string{"setup", "setup-1"}, headingIDs(doc.Tree, "h2"))
	assert.Equal(t, []string{
		`export const sections = [{title:"Setup",id:"setup"},{title:"Setup",id:"setup-1"}]`,
		`export const frontmatter = {}`,
	}, esmSources(doc.Tree))

	pre := findPre(doc.Tree)
	require.NotNil(t, pre)
	assert.Equal(t, "js", pre.Prop("language"))
	assert.Equal(t, "const x = 1;\n", pre.Prop("code"))

	markupNode := pre.Children[0].Children[0]
	require.Equal(t, hast.KindRaw, markupNode.Kind)
	assert.NotContains(t, markupNode.Value, "\n", "single line")
	assert.Equal(t, 8, strings.Count(markupNode.Value, `<span style="color:`))
	for _, token := range []string{">const<", "> <", ">x<", ">=<", ">1<", ">;<"} {
		assert.Contains(t, markupNode.Value, token)
	}
}

func TestSlugsNumberRepeatedTitles(t *testing.T) {
	t.Parallel()

	doc := parse(t, "ex.md", "## Example\n\ntext\n\n## Example\n\n## Example\n")
	require.NoError(t, pipeline.Slugs{}.Apply(doc))
	assert.Equal(t, []string{"example", "example-1", "example-2"}, headingIDs(doc.Tree, "h2"))
}

func TestSlugsDistinctTitlesGetDistinctIDs(t *testing.T) {
	t.Parallel()

	doc := parse(t, "d.md", "## Install\n\n## Configure\n\n## Deploy\n\n## Verify\n")
	require.NoError(t, pipeline.Slugs{}.Apply(doc))
	assert.Equal(t, []string{"install", "configure", "deploy", "verify"}, headingIDs(doc.Tree, "h2"))
}

func TestSlugsRegistryKeyedByBase(t *testing.T) {
	t.Parallel()

	doc := parse(t, "k.md", "## A\n\n## a\n\n## A!\n\n## a-1\n")
	require.NoError(t, pipeline.Slugs{}.Apply(doc))
	assert.Equal(t, []string{"a", "a-1", "a-2", "a-1"}, headingIDs(doc.Tree, "h2"))
}

func TestSlugsIdempotent(t *testing.T) {
	t.Parallel()

	doc := parse(t, "i.md", "## One\n\n## Two\n\n## One\n")
	require.NoError(t, pipeline.Slugs{}.Apply(doc))
	first := headingIDs(doc.Tree, "h2")
	require.NoError(t, pipeline.Slugs{}.Apply(doc))
	assert.Equal(t, first, headingIDs(doc.Tree, "h2"))
}

func TestSlugsLeaveAuthorIDsOutOfRegistry(t *testing.T) {
	t.Parallel()

	doc := parse(t, "a.md", "## Intro {#intro}\n\n## Intro\n\n## Custom {#setup}\n\n## Setup\n")
	require.NoError(t, pipeline.Slugs{}.Apply(doc))
	assert.Equal(t, []string{"intro", "intro", "setup", "setup"}, headingIDs(doc.Tree, "h2"))
}

func TestSlugsWarnWhenRepeatingAuthorID(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	doc := parse(t, "example.md", "## Example\n\n## Example {#example}\n\n## Example\n")
	require.NoError(t, pipeline.Slugs{Logger: logger}.Apply(doc))

	assert.Equal(t, []string{"example", "example", "example-1"}, headingIDs(doc.Tree, "h2"))
	assert.Equal(t, 1, strings.Count(logs.String(), "heading slug repeats an explicit id"))
	assert.Contains(t, logs.String(), "path=example.md id=example")
}

func TestHeadingIDsAvoidExistingIDs(t *testing.T) {
	t.Parallel()

	doc := parse(t, "h.md", "# Setup\n\n## Setup\n\n### Details\n\n### Details\n\n#### Kept {#kept}\n")
	require.NoError(t, pipeline.Slugs{}.Apply(doc))
	require.NoError(t, pipeline.HeadingIDs{}.Apply(doc))

	assert.Equal(t, []string{"setup-1"}, headingIDs(doc.Tree, "h1"))
	assert.Equal(t, []string{"setup"}, headingIDs(doc.Tree, "h2"))
	assert.Equal(t, []string{"details", "details-1"}, headingIDs(doc.Tree, "h3"))
	assert.Equal(t, []string{"kept"}, headingIDs(doc.Tree, "h4"))
}

func TestSectionsFollowPreOrder(t *testing.T) {
	t.Parallel()

	annotation := esm.NewObject().Set("tag", esm.String("GET"))
	tree := hast.Root(
		hast.Element("h2", hast.Props("id", "one"), hast.Text("One")),
		hast.Element("div", nil,
			hast.Element("p", nil, hast.Text("intro")),
			hast.Element("h2", hast.Props("id", "two", "annotation", annotation), hast.Text("Two")),
			hast.Element("section", nil,
				hast.Element("h2", hast.Props("id", "three"), hast.Text("Three")),
			),
		),
		hast.Element("h3", hast.Props("id", "skip"), hast.Text("Skip")),
		hast.Element("h2", hast.Props("id", "one"), hast.Text("One")),
	)

	sections := pipeline.Sections(tree)
	require.Len(t, sections, 4)
	var titles []string
	for _, s := range sections {
		titles = append(titles, s.Title)
	}
	assert.Equal(t, []string{"One", "Two", "Three", "One"}, titles)
	assert.Equal(t,
		`[{title:"One",id:"one"},{title:"Two",id:"two",tag:"GET"},{title:"Three",id:"three"},{title:"One",id:"one"}]`,
		esm.Serialize(pipeline.SectionsValue(sections)))
}

func TestSectionAnnotationOverridesTitle(t *testing.T) {
	t.Parallel()

	s := pipeline.Section{Title: "T", ID: "t", Annotation: esm.NewObject().Set("title", esm.String("Other")).Set("x", esm.Number(1))}
	assert.Equal(t, `{title:"Other",id:"t",x:1}`, esm.Serialize(s.Value()))
}

func TestAnnotatedHeadingsReachSections(t *testing.T) {
	t.Parallel()

	doc := parse(t, "api.md", "## List users {{ tag: 'GET', label: '/v1/users' }}\n")
	require.NoError(t, run(t, doc, pipeline.Options{Tokenizers: fakeCache(&echoTokenizer{}, nil)}))

	v, err := pipeline.Exported(doc.Tree, "sections")
	require.NoError(t, err)
	assert.Equal(t, `[{title:"List users",id:"list-users",tag:"GET",label:"/v1/users"}]`, esm.Serialize(v))
}

func TestExportsKeepAuthoredBindings(t *testing.T) {
	t.Parallel()

	src := "---\ntitle: Authored\n---\n\nexport const sections = [{ title: 'Custom', id: 'custom' }]\n\n## Generated\n"
	doc := parse(t, "authored.md", src)
	require.NoError(t, run(t, doc, pipeline.Options{Tokenizers: fakeCache(&echoTokenizer{}, nil)}))

	sources := esmSources(doc.Tree)
	require.Len(t, sources, 2)
	assert.Equal(t, "export const sections = [{ title: 'Custom', id: 'custom' }]", sources[0], "authored binding keeps its position")
	assert.Equal(t, `export const frontmatter = {"title":"Authored"}`, sources[1])

	v, err := pipeline.Exported(doc.Tree, "sections")
	require.NoError(t, err)
	assert.Equal(t, `[{title:"Custom",id:"custom"}]`, esm.Serialize(v))

	names := doc.Bindings.Names()
	assert.Equal(t, []string{"sections", "frontmatter"}, names)
}

func TestExportsFollowMappingOrder(t *testing.T) {
	t.Parallel()

	doc := parse(t, "m.md", "export const frontmatter = { custom: true }\n\n## A\n")
	stage := pipeline.Exports{Bindings: func(*pipeline.Document) (*pipeline.Bindings, error) {
		return pipeline.NewBindings().
			Set("zeta", "1").
			Set("alpha", `"a"`).
			Set("zeta", "2"), nil
	}}
	require.NoError(t, stage.Apply(doc))

	assert.Equal(t, []string{
		"export const frontmatter = { custom: true }",
		"export const zeta = 2",
		`export const alpha = "a"`,
	}, esmSources(doc.Tree))

	_, err := pipeline.Exported(doc.Tree, "missing")
	assert.ErrorIs(t, err, pipeline.ErrNotExported)
}

func TestExportsRejectInvalidLiteral(t *testing.T) {
	t.Parallel()

	doc := parse(t, "bad.md", "text\n")
	stage := pipeline.Exports{Bindings: func(*pipeline.Document) (*pipeline.Bindings, error) {
		return pipeline.NewBindings().Set("broken", "{"), nil
	}}
	assert.Error(t, stage.Apply(doc))
}

func TestUnknownLanguageFailsDocument(t *testing.T) {
	t.Parallel()

	doc := parse(t, "guide/typo.md", "```unknownlang123\nx\n```\n")
	err := run(t, doc, pipeline.Options{Tokenizers: highlight.NewCache(nil)})
	require.Error(t, err)

	var stageErr *pipeline.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "tokenize", stageErr.Stage)
	assert.Equal(t, "guide/typo.md", stageErr.Path)
	assert.ErrorIs(t, err, highlight.ErrUnknownLanguage)
	assert.Contains(t, err.Error(), "unknownlang123")
	assert.Contains(t, err.Error(), "guide/typo.md")
}

func TestTokenizeEscapesMarkup(t *testing.T) {
	t.Parallel()

	doc := parse(t, "x.md", "```html\n<script>&\"'\n```\n")
	require.NoError(t, run(t, doc, pipeline.Options{Tokenizers: fakeCache(&echoTokenizer{}, nil)}))

	pre := findPre(doc.Tree)
	out := pre.Children[0].Children[0].Value
	assert.Contains(t, out, "&lt;script&gt;&amp;&quot;&#39;")
	assert.NotContains(t, out, "<script>")
	assert.Equal(t, "<script>&\"'\n", pre.Prop("code"))
}

func TestTokenizeWithoutLanguageLeavesText(t *testing.T) {
	t.Parallel()

	builds := 0
	tok := &echoTokenizer{}
	doc := parse(t, "plain.md", "```\nplain <b>\n```\n\n    indented\n")
	require.NoError(t, run(t, doc, pipeline.Options{Tokenizers: fakeCache(tok, &builds)}))

	pre := findPre(doc.Tree)
	assert.False(t, pre.HasProp("language"))
	assert.Equal(t, "plain <b>\n", pre.Prop("code"))
	assert.Equal(t, hast.KindText, pre.Children[0].Children[0].Kind)
	assert.Equal(t, "plain <b>\n", pre.Children[0].Children[0].Value)
	assert.Zero(t, builds, "tokenizer is only built when a block needs it")
}

func TestTokenizeSharesOneTokenizer(t *testing.T) {
	t.Parallel()

	builds := 0
	tok := &echoTokenizer{}
	cache := fakeCache(tok, &builds)
	for _, path := range []string{"a.md", "b.md"} {
		doc := parse(t, path, "```go\na\n```\n\n```sol\nb\n```\n")
		require.NoError(t, run(t, doc, pipeline.Options{Tokenizers: cache}))
	}
	assert.Equal(t, 1, builds)
	assert.Equal(t, []string{"go", "sol", "go", "sol"}, tok.calls)
}

func TestShapeViolationsAreNoOps(t *testing.T) {
	t.Parallel()

	tree := hast.Root(
		hast.Element("pre", nil),
		hast.Element("pre", nil, hast.Element("span", nil, hast.Text("x"))),
		hast.Element("p", nil, hast.Element("code", nil, hast.Text("inline"))),
		hast.Element("pre", nil, hast.Element("code", hast.Props("className", "language-"), hast.Text("y"))),
	)
	doc := &pipeline.Document{Path: "shape.md", Tree: tree}
	require.NoError(t, run(t, doc, pipeline.Options{Tokenizers: fakeCache(&echoTokenizer{}, nil)}))

	assert.False(t, tree.Children[0].HasProp("code"))
	assert.False(t, tree.Children[1].HasProp("code"))
	assert.False(t, tree.Children[2].HasProp("language"))
	assert.False(t, tree.Children[3].HasProp("language"))
	assert.Equal(t, "y", tree.Children[3].Prop("code"))
}

type fakeDiagrams struct {
	err error
}

func (f fakeDiagrams) RenderSVG(_ context.Context, source string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "<svg>" + strings.TrimSpace(source) + "</svg>", nil
}

func TestDiagramsAreRenderedNotHighlighted(t *testing.T) {
	t.Parallel()

	tok := &echoTokenizer{}
	src := "```d2\na -> b\n```\n\n```mermaid\ngraph TD\n```\n"

	doc := parse(t, "d.md", src)
	require.NoError(t, run(t, doc, pipeline.Options{Tokenizers: fakeCache(tok, nil), Diagrams: fakeDiagrams{}}))
	assert.Empty(t, tok.calls)

	var pres []*hast.Node
	_ = hast.Elements(doc.Tree, func(el, _ *hast.Node) error {
		if el.Tag == "pre" {
			pres = append(pres, el)
		}
		return nil
	})
	require.Len(t, pres, 2)
	assert.Equal(t, "d2", pres[0].Prop("diagram"))
	assert.Equal(t, "<svg>a -> b</svg>", pres[0].Prop("diagram-svg"))
	assert.Equal(t, "a -> b\n", pres[0].Prop("code"))
	assert.Equal(t, "mermaid", pres[1].Prop("diagram"))

	failing := parse(t, "f.md", src)
	require.NoError(t, run(t, failing, pipeline.Options{Tokenizers: fakeCache(tok, nil), Diagrams: fakeDiagrams{err: errors.New("bad layout")}}))
	assert.Equal(t, "bad layout", findPre(failing.Tree).Prop("diagram-error"))
}

func TestRunChecksContextBeforeStarting(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := parse(t, "c.md", "## Title\n")
	err := pipeline.Default(pipeline.Options{}).Run(ctx, doc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{""}, headingIDs(doc.Tree, "h2"))
}

type countingRecorder struct {
	metrics.NoopRecorder
	mu        sync.Mutex
	durations map[string]int
	results   map[metrics.ResultLabel]int
	documents int
}

func (c *countingRecorder) ObserveStageDuration(stage string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.durations[stage]++
}

func (c *countingRecorder) IncStageResult(_ string, result metrics.ResultLabel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[result]++
}

func (c *countingRecorder) IncDocuments(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documents += n
}

func TestRunRecordsStages(t *testing.T) {
	t.Parallel()

	rec := &countingRecorder{durations: map[string]int{}, results: map[metrics.ResultLabel]int{}}
	p := pipeline.Default(pipeline.Options{Tokenizers: fakeCache(&echoTokenizer{}, nil), Recorder: rec})
	assert.Equal(t, []string{"code-blocks", "diagrams", "tokenize", "slugs", "heading-ids", "exports"}, p.Stages())

	require.NoError(t, p.Run(context.Background(), parse(t, "ok.md", "## A\n")))
	assert.Len(t, rec.durations, 6)
	assert.Equal(t, 6, rec.results[metrics.ResultSuccess])
	assert.Equal(t, 1, rec.documents)

	err := p.Run(context.Background(), parse(t, "bad.md", "```unknownlang123\nx\n```\n"))
	require.Error(t, err)
	assert.Equal(t, 1, rec.results[metrics.ResultFatal])
	assert.Equal(t, 1, rec.documents)
}
