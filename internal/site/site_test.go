package site_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirily11/msbd5017-docs/internal/metrics"
	"github.com/sirily11/msbd5017-docs/internal/pipeline"
	"github.com/sirily11/msbd5017-docs/internal/site"
)

var contentDir = filepath.Join("..", "..", "testdata", "content")

type fakeDiagrams struct{}

func (fakeDiagrams) RenderSVG(_ context.Context, source string) (string, error) {
	return "<svg><!-- " + source + " --></svg>", nil
}

type outcomes struct {
	builds []metrics.BuildOutcomeLabel
	mu     sync.Mutex
}

func (o *outcomes) ObserveStageDuration(string, time.Duration) {}
func (o *outcomes) IncStageResult(string, metrics.ResultLabel) {}
func (o *outcomes) ObserveBuildDuration(time.Duration)         {}
func (o *outcomes) IncDocuments(int)                           {}
func (o *outcomes) IncCacheHit()                               {}
func (o *outcomes) IncBuildOutcome(l metrics.BuildOutcomeLabel) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.builds = append(o.builds, l)
}

func newBuilder(t *testing.T, rec metrics.Recorder) *site.Builder {
	t.Helper()
	b, err := site.New(site.Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder: rec,
		Diagrams: fakeDiagrams{},
	})
	require.NoError(t, err)
	return b
}

func readFile(t *testing.T, parts ...string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(parts...))
	require.NoError(t, err)
	return string(raw)
}

func TestCollectRegistersPagesInNavOrder(t *testing.T) {
	t.Parallel()

	collected, err := newBuilder(t, nil).Collect(context.Background(), contentDir)
	require.NoError(t, err)

	var routes []string
	for _, e := range collected.Registry.Entries() {
		routes = append(routes, e.Route)
	}
	assert.Equal(t, []string{
		"/",
		"/getting-started",
		"/getting-started/wallet-setup",
		"/getting-started/hardhat",
		"/smart-contracts/erc20",
		"/smart-contracts/erc721",
	}, routes)

	hardhat, ok := collected.Registry.Get("/getting-started/hardhat")
	require.True(t, ok)
	assert.Equal(t, "Hardhat", hardhat.Title)
	assert.Equal(t, "Compile, test and deploy contracts locally.", hardhat.Description)
	ids := make([]string, 0, len(hardhat.Sections))
	for _, s := range hardhat.Sections {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"install", "compile", "deploy-local"}, ids)
	assert.Equal(t, "CLI", hardhat.Sections[1].Attribute("tag"))
	assert.Equal(t, []string{"sections", "frontmatter"}, hardhat.Bindings.Names())

	sections, ok := collected.Registry.Sections("/smart-contracts/erc20")
	require.True(t, ok)
	require.Len(t, sections, 2)
	assert.Equal(t, "EIP-20", sections[0].Attribute("tag"))

	wallet, _ := collected.Registry.Get("/getting-started/wallet-setup")
	assert.Equal(t, "Wallet Setup", wallet.Title)

	gettingStarted := collected.Tree.Children[0]
	assert.Equal(t, "Getting Started", gettingStarted.Title)
	require.NotNil(t, gettingStarted.Metadata)
	assert.Equal(t, []string{"setup"}, gettingStarted.Metadata.Tags)
}

func TestBuildWritesSite(t *testing.T) {
	t.Parallel()
	rec := &outcomes{}
	out := t.TempDir()

	res, err := newBuilder(t, rec).Build(context.Background(), site.Options{
		ContentDir:  contentDir,
		OutputDir:   out,
		SiteTitle:   "MSBD5017",
		BaseURL:     "https://docs.example.com/",
		SearchIndex: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Documents)
	_, err = uuid.Parse(res.BuildID)
	assert.NoError(t, err)
	assert.Equal(t, []metrics.BuildOutcomeLabel{metrics.BuildSuccess}, rec.builds)

	for _, rel := range []string{
		"index.html",
		"getting-started/index.html",
		"getting-started/hardhat/index.html",
		"smart-contracts/erc721/index.html",
		"assets/css/app.css",
		"assets/css/code-theme.css",
		"assets/js/app.js",
	} {
		assert.FileExists(t, filepath.Join(out, filepath.FromSlash(rel)))
	}
	assert.NoFileExists(t, filepath.Join(out, "smart-contracts", "index.html"), "directories without a page are not routed")

	hardhat := readFile(t, out, "getting-started", "hardhat", "index.html")
	assert.Contains(t, hardhat, "<title>Hardhat · MSBD5017</title>")
	assert.Contains(t, hardhat, `<link rel="canonical" href="https://docs.example.com/getting-started/hardhat">`)
	assert.Contains(t, hardhat, `href="/getting-started/wallet-setup#connect-to-the-test-network"`)
	assert.Contains(t, hardhat, `<h2 id="deploy-local">Deploy`)
	assert.Contains(t, hardhat, `<div class="d2-block"`)
	assert.Contains(t, hardhat, `<span class="section-tag">CLI</span>`)
	assert.Contains(t, hardhat, `<a class="pager-prev" href="/getting-started/wallet-setup">Wallet Setup</a>`)
	assert.Contains(t, hardhat, `<a class="pager-next" href="/smart-contracts/erc20">ERC-20 Tokens</a>`)
	assert.Contains(t, hardhat, `<li><a href="/getting-started">Getting Started</a></li>`)
	assert.Contains(t, hardhat, `aria-current="page">Hardhat</a>`)
	assert.NotContains(t, hardhat, "data-live-reload")

	theme := readFile(t, out, "assets", "css", "code-theme.css")
	assert.Contains(t, theme, "--code-token-keyword:")

	var nav struct {
		Root struct {
			Route    string `json:"route"`
			Children []struct {
				Title string `json:"title"`
			} `json:"children"`
		} `json:"root"`
	}
	require.NoError(t, json.Unmarshal([]byte(readFile(t, out, "nav.json")), &nav))
	assert.Equal(t, "/", nav.Root.Route)
	require.Len(t, nav.Root.Children, 2)
	assert.Equal(t, "Smart Contracts", nav.Root.Children[1].Title)

	var index struct {
		BuildID string `json:"buildId"`
		Records []struct {
			URL     string `json:"url"`
			Section string `json:"section"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(readFile(t, out, "search.json")), &index))
	assert.Equal(t, res.BuildID, index.BuildID)
	var urls []string
	for _, r := range index.Records {
		urls = append(urls, r.URL)
	}
	assert.Contains(t, urls, "/smart-contracts/erc20#interface")
	assert.Contains(t, urls, "/getting-started/hardhat#deploy-local")

	var manifest struct {
		ID        string   `json:"id"`
		Routes    []string `json:"routes"`
		Documents int      `json:"documents"`
	}
	require.NoError(t, json.Unmarshal([]byte(readFile(t, out, "build.json")), &manifest))
	assert.Equal(t, res.BuildID, manifest.ID)
	assert.Equal(t, 6, manifest.Documents)
	assert.Equal(t, "/", manifest.Routes[0])
}

func TestBuildWritesLandingPageWithoutRootPage(t *testing.T) {
	t.Parallel()
	content := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(content, "1.intro.md"), []byte("# Intro\n\nHello.\n"), 0o644))
	out := t.TempDir()

	_, err := newBuilder(t, nil).Build(context.Background(), site.Options{ContentDir: content, OutputDir: out})
	require.NoError(t, err)

	landing := readFile(t, out, "index.html")
	assert.Contains(t, landing, `<h1 id="intro">Intro`)
	assert.FileExists(t, filepath.Join(out, "intro", "index.html"))
	assert.NoFileExists(t, filepath.Join(out, "search.json"))
}

func TestBuildEmptyContentWritesWelcome(t *testing.T) {
	t.Parallel()
	out := t.TempDir()

	res, err := newBuilder(t, nil).Build(context.Background(), site.Options{ContentDir: t.TempDir(), OutputDir: out})
	require.NoError(t, err)
	assert.Zero(t, res.Documents)
	assert.Contains(t, readFile(t, out, "index.html"), `class="empty-state"`)
}

func TestBuildFailsOnPipelineError(t *testing.T) {
	t.Parallel()
	content := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(content, "broken.md"), []byte("```nosuchlang\nx\n```\n"), 0o644))
	rec := &outcomes{}

	_, err := newBuilder(t, rec).Build(context.Background(), site.Options{ContentDir: content, OutputDir: t.TempDir()})
	require.Error(t, err)
	var stageErr *pipeline.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "broken.md", stageErr.Path)
	assert.Equal(t, []metrics.BuildOutcomeLabel{metrics.BuildFailed}, rec.builds)
}

func TestBuildCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &outcomes{}

	_, err := newBuilder(t, rec).Build(ctx, site.Options{ContentDir: contentDir, OutputDir: t.TempDir()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []metrics.BuildOutcomeLabel{metrics.BuildCanceled}, rec.builds)
}

func TestCollectRejectsDuplicateRoutes(t *testing.T) {
	t.Parallel()
	content := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(content, "a.md"), []byte("# A\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(content, "a.mdx"), []byte("# A again\n"), 0o644))

	_, err := newBuilder(t, nil).Collect(context.Background(), content)
	assert.ErrorIs(t, err, site.ErrDuplicateRoute)
}

func TestRenderPage(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, nil)
	collected, err := b.Collect(context.Background(), contentDir)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, b.RenderPage(&buf, collected, "/smart-contracts/erc721", site.Options{LiveReload: true}))
	html := buf.String()
	assert.Contains(t, html, `data-live-reload="/events"`)
	assert.Contains(t, html, `<div class="mermaid">`)
	assert.Contains(t, html, `<a class="pager-prev" href="/smart-contracts/erc20">ERC-20 Tokens</a>`)
	assert.NotContains(t, html, "pager-next")

	err = b.RenderPage(&buf, collected, "/missing", site.Options{})
	assert.ErrorIs(t, err, site.ErrPageNotFound)
}

func TestBasePathPrefixesURLs(t *testing.T) {
	t.Parallel()
	b, err := site.New(site.Config{BasePath: "/course/"})
	require.NoError(t, err)
	assert.Equal(t, "/course/getting-started", b.URL("/getting-started"))
	assert.Equal(t, "/course", b.URL("/"))
}
