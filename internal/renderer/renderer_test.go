package renderer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirily11/msbd5017-docs/internal/esm"
	"github.com/sirily11/msbd5017-docs/internal/hast"
	"github.com/sirily11/msbd5017-docs/internal/metrics"
	"github.com/sirily11/msbd5017-docs/internal/pipeline"
	"github.com/sirily11/msbd5017-docs/internal/renderer"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRenderWithMetadataAndMermaid(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger())

	content := []byte("---\n" +
		"title: Example Doc\n" +
		"description: Sample description\n" +
		"tags:\n" +
		"  - go\n" +
		"  - wiki\n" +
		"---\n\n" +
		"# Hello\n\n" +
		"Some inline text.\n\n" +
		"```mermaid\n" +
		"graph TD;\n" +
		"A-->B;\n" +
		"```\n\n" +
		"## Code\n\n" +
		"```go\n" +
		"package main\n" +
		"```\n")

	modTime := time.Unix(1_000, 0)
	doc, err := svc.Render(context.Background(), "docs/example.md", modTime, content)
	require.NoError(t, err)

	assert.Equal(t, "Example Doc", doc.Metadata.Title)
	assert.Equal(t, "Sample description", doc.Metadata.Description)
	assert.Equal(t, []string{"go", "wiki"}, doc.Metadata.Tags)
	assert.Equal(t, "Example Doc", doc.Frontmatter.String("title"))
	assert.True(t, doc.Modified.Equal(modTime))

	html := doc.HTML
	assert.Contains(t, html, `<div class="mermaid">graph TD;`)
	assert.Contains(t, html, "A--&gt;B;")
	assert.NotContains(t, html, "language-mermaid")
	assert.Contains(t, html, `<h1 id="hello">Hello<a class="heading-anchor" href="#hello" aria-hidden="true">#</a></h1>`)
	assert.Contains(t, html, `<pre data-language="go"><code class="language-go"><span><span style="color:var(--code-token-keyword)">package</span>`)
	assert.NotContains(t, html, "export const", "ESM nodes are not rendered")

	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Code", doc.Sections[0].Title)
	assert.Equal(t, "code", doc.Sections[0].ID)
	assert.Equal(t, []string{"sections", "frontmatter"}, doc.Bindings.Names())
	assert.Contains(t, doc.Text, "Some inline text.")
	assert.Contains(t, doc.Text, "package main")
}

func TestRenderCaching(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	svc := renderer.NewService(quietLogger(), renderer.WithRecorder(hitCounter{&hits}))

	ctx := context.Background()
	path := "docs/cache.md"
	modTime := time.Unix(2_000, 0)

	doc1, err := svc.Render(ctx, path, modTime, []byte("# First"))
	require.NoError(t, err)

	doc2, err := svc.Render(ctx, path, modTime, []byte("# Second"))
	require.NoError(t, err)
	assert.Equal(t, doc1.HTML, doc2.HTML, "same modTime is served from cache")
	assert.Equal(t, int32(1), hits.Load())

	doc3, err := svc.Render(ctx, path, modTime.Add(time.Second), []byte("# Second"))
	require.NoError(t, err)
	assert.Contains(t, doc3.HTML, "Second")

	svc.Invalidate(path)
	doc4, err := svc.Render(ctx, path, modTime.Add(time.Second), []byte("# Third"))
	require.NoError(t, err)
	assert.Contains(t, doc4.HTML, "Third")

	_, err = svc.Render(ctx, "zero.md", time.Time{}, []byte("# A"))
	require.NoError(t, err)
	doc5, err := svc.Render(ctx, "zero.md", time.Time{}, []byte("# B"))
	require.NoError(t, err)
	assert.Contains(t, doc5.HTML, ">B<", "zero modTime is never cached")
}

type hitCounter struct {
	hits *atomic.Int32
}

func (h hitCounter) ObserveStageDuration(string, time.Duration)  {}
func (h hitCounter) IncStageResult(string, metrics.ResultLabel)  {}
func (h hitCounter) ObserveBuildDuration(time.Duration)          {}
func (h hitCounter) IncBuildOutcome(metrics.BuildOutcomeLabel)   {}
func (h hitCounter) IncDocuments(int)                            {}
func (h hitCounter) IncCacheHit()                                { h.hits.Add(1) }

func TestRenderAuthoredSections(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger())

	src := "export const sections = [{ title: 'Overview', id: 'overview', tag: 'GET' }]\n\n## Something else\n"
	doc, err := svc.Render(context.Background(), "api.md", time.Time{}, []byte(src))
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Overview", doc.Sections[0].Title)
	assert.Equal(t, "GET", doc.Sections[0].Attribute("tag"))
	assert.Contains(t, doc.HTML, `<h2 id="something-else">`)
}

func TestRenderAuthoredSectionsAmongOtherExports(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger())

	cases := map[string]string{
		"exports": "export const tutorialId = \"hardhat\"\n" +
			"export const sections = [{ title: 'Authored', id: 'authored' }]\n\n" +
			"## Generated\n",
		"imports": "import { Quiz } from '@/components/quiz'\n" +
			"export const sections = [{ title: 'Authored', id: 'authored' }]\n\n" +
			"## Generated\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			doc, err := svc.Render(context.Background(), name+".mdx", time.Time{}, []byte(src))
			require.NoError(t, err)
			require.Len(t, doc.Sections, 1)
			assert.Equal(t, "Authored", doc.Sections[0].Title)
			assert.Equal(t, "authored", doc.Sections[0].ID)
		})
	}
}

func TestRenderNonLiteralSectionsFallBackToHeadings(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger())

	src := "export const sections = sharedSections\n\n## Install\n\n## Deploy\n"
	doc, err := svc.Render(context.Background(), "shared.mdx", time.Time{}, []byte(src))
	require.NoError(t, err)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "install", doc.Sections[0].ID)
	assert.Equal(t, "deploy", doc.Sections[1].ID)
	assert.Equal(t, []string{"sections", "frontmatter"}, doc.Bindings.Names())
}

func TestRenderAnnotatedHeading(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger())

	doc, err := svc.Render(context.Background(), "api.md", time.Time{}, []byte("## Create {{ tag: 'POST', label: '/v1/items' }}\n"))
	require.NoError(t, err)

	assert.Contains(t, doc.HTML, `<h2 id="create" data-tag="POST" data-label="/v1/items">Create<a`)
	raw, err := doc.Sections[0].MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Create","id":"create","tag":"POST","label":"/v1/items"}`, string(raw))
}

func TestRenderUnknownLanguageFails(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger())

	_, err := svc.Render(context.Background(), "broken.md", time.Time{}, []byte("```nosuchlang\nx\n```\n"))
	require.Error(t, err)
	var stageErr *pipeline.StageError
	assert.True(t, errors.As(err, &stageErr))
}

func TestRenderLinkResolver(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.WithLinkResolver(func(target string) (string, bool) {
		if target == "guide/setup.md" {
			return "/docs/guide/setup", true
		}
		return "", false
	}))

	doc, err := svc.Render(context.Background(), "guide/index.md", time.Time{}, []byte("[Setup](setup.md#install) [Other](missing.md)\n"))
	require.NoError(t, err)
	assert.Contains(t, doc.HTML, `href="/docs/guide/setup#install"`)
	assert.Contains(t, doc.HTML, `href="missing.md"`)
}

func TestHTMLDiagrams(t *testing.T) {
	t.Parallel()

	svgPre := hast.Element("pre", hast.Props("diagram", "d2", "code", "a -> b\n", "diagram-svg", "<svg>ok</svg>"))
	errPre := hast.Element("pre", hast.Props("diagram", "d2", "code", "a -> \n", "diagram-error", "bad <input>"))
	out, err := renderer.HTML(hast.Root(svgPre, errPre))
	require.NoError(t, err)

	assert.Contains(t, out, `<div class="d2-block" data-source-b64="YSAtPiBiCg=="><svg>ok</svg></div>`)
	assert.Contains(t, out, `<div class="d2-error">bad &lt;input&gt;</div>`)
	assert.Contains(t, out, `<pre data-language="d2"><code class="language-d2">a -&gt; `)
}

func TestHTMLAttributes(t *testing.T) {
	t.Parallel()

	tree := hast.Root(
		hast.Element("ol", hast.Props("start", 3), hast.Element("li", hast.Props("className", []string{"task-list-item"}),
			hast.Element("input", hast.Props("type", "checkbox", "checked", true, "disabled", true)),
			hast.Text(" done"),
		)),
		hast.Element("p", nil, hast.Raw("<b>raw</b>"), hast.Text(" & text")),
		hast.ESM("export const x = 1"),
	)
	out, err := renderer.HTML(tree)
	require.NoError(t, err)
	assert.Equal(t,
		`<ol start="3"><li class="task-list-item"><input type="checkbox" checked="" disabled=""/> done</li></ol><p><b>raw</b> &amp; text</p>`,
		out)
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	tree := hast.Root(
		hast.Element("h2", hast.Props("id", "a"), hast.Text("Title")),
		hast.Element("p", nil, hast.Text("Hello "), hast.Element("em", nil, hast.Text("world"))),
		hast.Element("pre", hast.Props("code", "let x = 1;\n"), hast.Element("code", nil, hast.Raw("<span>ignored</span>"))),
	)
	assert.Equal(t, "Title\nHello world\nlet x = 1;", renderer.PlainText(tree))
}

func TestSectionsFromValueRejectsShapes(t *testing.T) {
	t.Parallel()

	_, err := renderer.SectionsFromValue(esm.String("nope"))
	assert.ErrorIs(t, err, renderer.ErrSectionsShape)

	_, err = renderer.SectionsFromValue(esm.Array{esm.Number(1)})
	assert.ErrorIs(t, err, renderer.ErrSectionsShape)

	sections, err := renderer.SectionsFromValue(esm.Array{esm.NewObject().Set("title", esm.String("T")).Set("id", esm.String("t"))})
	require.NoError(t, err)
	assert.Equal(t, "t", sections[0].ID)
	assert.True(t, strings.HasPrefix(sections[0].Attributes.String("title"), "T"))
}
