package site

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/styles"
	"github.com/google/uuid"

	"github.com/sirily11/msbd5017-docs/internal/buildinfo"
	"github.com/sirily11/msbd5017-docs/internal/content/tree"
	"github.com/sirily11/msbd5017-docs/internal/highlight"
	"github.com/sirily11/msbd5017-docs/internal/renderer"
	"github.com/sirily11/msbd5017-docs/internal/search"
	docstatic "github.com/sirily11/msbd5017-docs/static"
)

const (
	indexHTML   = "index.html"
	assetPrefix = "assets"
	// DefaultThemeStyle is the chroma style whose colors fill the code
	// token variables.
	DefaultThemeStyle = "github-dark"
)

// Options configure pass two.
type Options struct {
	ContentDir string
	OutputDir  string
	// AssetsDir replaces the embedded asset bundle when set.
	AssetsDir     string
	SiteTitle     string
	BaseURL       string
	ThemeStyle    string
	DarkModeFirst bool
	SearchIndex   bool
	CleanOutput   bool
	// LiveReload makes pages subscribe to the dev server's event stream.
	LiveReload bool
}

// Write lays out the collected pages under opts.OutputDir.
//
//nolint:gocognit,gocyclo // write orchestration requires sequential steps
func (b *Builder) Write(ctx context.Context, opts Options, collected *Collected) (*Result, error) {
	if collected == nil {
		return nil, errors.New("nothing collected")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, errors.New("output directory is required")
	}
	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output: %w", err)
	}
	assetsDir := opts.AssetsDir
	if assetsDir != "" {
		if assetsDir, err = filepath.Abs(assetsDir); err != nil {
			return nil, fmt.Errorf("resolve assets: %w", err)
		}
	}

	if err := prepareOutputDir(outputDir, opts.CleanOutput); err != nil {
		return nil, err
	}

	generatedAt := time.Now().UTC()
	buildID := uuid.NewString()

	site := siteView(opts, collected, buildID, generatedAt)
	treePayload := navPayload{GeneratedAt: generatedAt, Root: collected.Tree}

	assetDest := filepath.Join(outputDir, assetPrefix)
	if err := b.copyAssetBundle(assetDest, assetsDir); err != nil {
		return nil, err
	}
	if err := writeThemeCSS(assetDest, opts.ThemeStyle); err != nil {
		return nil, err
	}
	assets := b.assetRefs()

	entries := collected.Registry.Entries()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		layout := layoutViewData{
			Site:        site,
			Page:        b.pageView(collected.Tree, entry, site.BaseURL),
			Active:      entry.Route,
			HasDocument: true,
			Assets:      assets,
		}
		if err := b.writePage(outputDir, outputPath(entry.Route), layout); err != nil {
			return nil, fmt.Errorf("write page %s: %w", entry.Route, err)
		}
	}

	if _, ok := collected.Registry.Get("/"); !ok {
		landing := layoutViewData{Site: site, Assets: assets}
		landing.Page.Title = site.Title
		if len(entries) > 0 {
			landing.Page = b.pageView(collected.Tree, entries[0], site.BaseURL)
			landing.Active = entries[0].Route
			landing.HasDocument = true
		} else {
			landing.Page.HTML = template.HTML(`<div class="empty-state">No content files were found. Add <code>.md</code> or <code>.mdx</code> files to the content directory and rebuild.</div>`)
		}
		if err := b.writePage(outputDir, indexHTML, landing); err != nil {
			return nil, fmt.Errorf("write landing page: %w", err)
		}
	}

	if err := writeJSON(outputDir, "nav.json", treePayload); err != nil {
		return nil, err
	}

	if opts.SearchIndex {
		idx := search.NewIndex(b.logger, SearchDocuments(collected.Registry, b.URL))
		payload := searchPayload{GeneratedAt: generatedAt, BuildID: buildID, Records: idx.Records()}
		if err := writeJSON(outputDir, "search.json", payload); err != nil {
			return nil, err
		}
	}

	manifest := buildManifest{
		ID:          buildID,
		GeneratedAt: generatedAt,
		Version:     buildinfo.Summary(),
		Documents:   len(entries),
		Routes:      make([]string, 0, len(entries)),
	}
	for _, entry := range entries {
		manifest.Routes = append(manifest.Routes, entry.Route)
	}
	if err := writeJSON(outputDir, "build.json", manifest); err != nil {
		return nil, err
	}

	b.logger.Info("build complete",
		slog.String("build_id", buildID),
		slog.Int("documents", len(entries)),
		slog.String("output", outputDir),
		slog.Duration("duration", time.Since(generatedAt)))

	return &Result{BuildID: buildID, OutputDir: outputDir, Documents: len(entries)}, nil
}

// ErrPageNotFound is returned by RenderPage for unknown routes.
var ErrPageNotFound = errors.New("page not found")

// RenderPage writes the page at route to w with the same layout Write uses.
func (b *Builder) RenderPage(w io.Writer, collected *Collected, route string, opts Options) error {
	entry, ok := collected.Registry.Get(route)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPageNotFound, route)
	}
	data := layoutViewData{
		Site:        siteView(opts, collected, "", time.Time{}),
		Page:        b.pageView(collected.Tree, entry, strings.TrimRight(opts.BaseURL, "/")),
		Active:      route,
		HasDocument: true,
		Assets:      b.assetRefs(),
	}
	return b.templates.render(w, "layout", data)
}

func siteView(opts Options, collected *Collected, buildID string, generatedAt time.Time) siteViewData {
	title := opts.SiteTitle
	if strings.TrimSpace(title) == "" {
		title = "Docs"
	}
	return siteViewData{
		Title:         title,
		GeneratedAt:   generatedAt,
		BuildID:       buildID,
		Tree:          collected.Tree,
		DarkModeFirst: opts.DarkModeFirst,
		BaseURL:       strings.TrimRight(opts.BaseURL, "/"),
		SearchIndex:   opts.SearchIndex,
		LiveReload:    opts.LiveReload,
	}
}

// SearchDocuments converts registry entries into search documents, using url
// to turn routes into links.
func SearchDocuments(reg *Registry, url func(route string) string) []search.Document {
	entries := reg.Entries()
	docs := make([]search.Document, 0, len(entries))
	for _, e := range entries {
		doc := search.Document{
			Route:       e.Route,
			URL:         url(e.Route),
			Title:       e.Title,
			Description: e.Description,
			Text:        e.Document.Text,
		}
		for _, s := range e.Sections {
			if s.ID == "" {
				continue
			}
			doc.Sections = append(doc.Sections, search.Section{Title: s.Title, ID: s.ID})
		}
		docs = append(docs, doc)
	}
	return docs
}

func (b *Builder) pageView(root *tree.Node, entry *Entry, baseURL string) pageViewData {
	page := pageViewData{
		Route:       entry.Route,
		Source:      entry.Source,
		URL:         b.URL(entry.Route),
		Title:       entry.Title,
		HTML:        template.HTML(entry.Document.HTML), //nolint:gosec // HTML from trusted renderer
		Metadata:    entry.Document.Metadata,
		Sections:    entry.Sections,
		Modified:    entry.Modified,
		Breadcrumbs: b.breadcrumbs(root, entry.Route),
	}
	if baseURL != "" {
		page.Canonical = baseURL + page.URL
	}
	prev, next := tree.Neighbors(root, entry.Route)
	if prev != nil {
		page.Prev = &pageLink{Title: prev.Title, URL: b.URL(prev.Route)}
	}
	if next != nil {
		page.Next = &pageLink{Title: next.Title, URL: b.URL(next.Route)}
	}
	return page
}

func (b *Builder) breadcrumbs(root *tree.Node, route string) []pageLink {
	chain := tree.PathTo(root, route)
	if len(chain) <= 1 {
		return nil
	}
	chain = chain[1:]
	out := make([]pageLink, 0, len(chain))
	for i, node := range chain {
		crumb := pageLink{Title: node.Title}
		if node.HasPage() && i != len(chain)-1 {
			crumb.URL = b.URL(node.Route)
		}
		out = append(out, crumb)
	}
	return out
}

// outputPath maps a route to the file serving it.
func outputPath(route string) string {
	clean := strings.Trim(route, "/")
	if clean == "" {
		return indexHTML
	}
	return clean + "/" + indexHTML
}

func prepareOutputDir(output string, clean bool) error {
	if clean {
		if err := os.RemoveAll(output); err != nil {
			return fmt.Errorf("clean output: %w", err)
		}
	}
	return os.MkdirAll(output, 0o755) //nolint:gosec // standard directory permissions
}

func (b *Builder) writePage(root, rel string, data layoutViewData) error {
	dest := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil { //nolint:gosec // standard directory permissions
		return err
	}
	buf := bytes.Buffer{}
	if err := b.templates.render(&buf, "layout", data); err != nil {
		return err
	}
	return os.WriteFile(dest, buf.Bytes(), 0o644) //nolint:gosec // standard file permissions
}

func (b *Builder) copyAssetBundle(dest, override string) error {
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("reset assets dir: %w", err)
	}
	override = strings.TrimSpace(override)
	if override != "" {
		if info, err := os.Stat(override); err == nil && info.IsDir() {
			if err := docstatic.Sync(os.DirFS(override), dest); err != nil {
				return fmt.Errorf("copy override assets: %w", err)
			}
			b.logger.Debug("using override assets", slog.String("source", override))
			return nil
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat assets override: %w", err)
		}
	}

	if err := docstatic.Sync(docstatic.Files(), dest); err != nil {
		return fmt.Errorf("copy embedded assets: %w", err)
	}
	return nil
}

// ThemeCSS returns the code token colors of the named chroma style.
func ThemeCSS(style string) string {
	if strings.TrimSpace(style) == "" {
		style = DefaultThemeStyle
	}
	return highlight.ThemeCSS(styles.Get(style))
}

func writeThemeCSS(assetDest, style string) error {
	css := ThemeCSS(style)
	dest := filepath.Join(assetDest, "css", "code-theme.css")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil { //nolint:gosec // standard directory permissions
		return err
	}
	if err := os.WriteFile(dest, []byte(css), 0o644); err != nil { //nolint:gosec // standard file permissions
		return fmt.Errorf("write code theme: %w", err)
	}
	return nil
}

func (b *Builder) assetRefs() assetRefs {
	return assetRefs{
		CSSApp:   b.URL(assetPrefix + "/css/app.css"),
		CSSTheme: b.URL(assetPrefix + "/css/code-theme.css"),
		JSApp:    b.URL(assetPrefix + "/js/app.js"),
		NavJSON:  b.URL("nav.json"),
		Search:   b.URL("search.json"),
	}
}

func writeJSON(output, name string, payload any) error {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	dest := filepath.Join(output, name)
	if err := os.WriteFile(dest, raw, 0o644); err != nil { //nolint:gosec // standard file permissions
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

type navPayload struct {
	GeneratedAt time.Time  `json:"generatedAt"`
	Root        *tree.Node `json:"root"`
}

type searchPayload struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	BuildID     string          `json:"buildId"`
	Records     []search.Record `json:"records"`
}

type buildManifest struct {
	GeneratedAt time.Time `json:"generatedAt"`
	ID          string    `json:"id"`
	Version     string    `json:"version"`
	Routes      []string  `json:"routes"`
	Documents   int       `json:"documents"`
}

//nolint:govet // field order optimized for readability, not memory
type layoutViewData struct {
	Page        pageViewData
	Site        siteViewData
	Assets      assetRefs
	Active      string
	HasDocument bool
}

type siteViewData struct {
	GeneratedAt   time.Time
	Tree          *tree.Node
	Title         string
	BuildID       string
	BaseURL       string
	DarkModeFirst bool
	SearchIndex   bool
	LiveReload    bool
}

type pageViewData struct {
	Metadata    renderer.Metadata
	Modified    time.Time
	Prev        *pageLink
	Next        *pageLink
	Route       string
	Source      string
	URL         string
	Title       string
	HTML        template.HTML
	Canonical   string
	Sections    []renderer.Section
	Breadcrumbs []pageLink
}

type pageLink struct {
	Title string
	URL   string
}

type assetRefs struct {
	CSSApp   string
	CSSTheme string
	JSApp    string
	NavJSON  string
	Search   string
}
