// Package exporter writes a single content page as standalone HTML,
// markdown source, plain text or PDF.
package exporter

import (
	"context"
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
	pdf "github.com/stephenafamo/goldmark-pdf"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/sirily11/msbd5017-docs/internal/content/tree"
	"github.com/sirily11/msbd5017-docs/internal/highlight"
	"github.com/sirily11/msbd5017-docs/internal/renderer"
	d2renderer "github.com/sirily11/msbd5017-docs/internal/renderer/d2"
)

// Format represents an export format.
type Format string

const (
	// FormatHTML exports as HTML.
	FormatHTML Format = "html"
	// FormatMarkdown exports the source file unchanged.
	FormatMarkdown Format = "markdown"
	// FormatPlainText exports as plain text.
	FormatPlainText Format = "txt"
	// FormatPDF exports as PDF.
	FormatPDF Format = "pdf"
)

// ErrTraversal is returned for paths that leave the content root.
var ErrTraversal = errors.New("invalid path: directory traversal not allowed")

// ValidFormats returns the list of supported export formats.
func ValidFormats() []Format {
	return []Format{FormatHTML, FormatMarkdown, FormatPlainText, FormatPDF}
}

// ParseFormat normalizes a user supplied format name.
func ParseFormat(format string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(format)))
	for _, valid := range ValidFormats() {
		if f == valid {
			return f, true
		}
	}
	return "", false
}

// IsValidFormat checks if the given format is valid.
func IsValidFormat(format string) bool {
	_, ok := ParseFormat(format)
	return ok
}

// Exporter renders single pages for download.
type Exporter struct {
	renderer *renderer.Service
	diagrams *diagramEncoder
	logger   *slog.Logger
	style    string
}

// Options configure an Exporter.
type Options struct {
	// Renderer is shared with the site build so cached pages are reused.
	Renderer *renderer.Service
	// D2 rasterizes d2 fences for PDF output; nil leaves them as code.
	D2 *d2renderer.Renderer
	// CodeStyle names the chroma style for standalone HTML.
	CodeStyle string
}

// New constructs an exporter.
func New(logger *slog.Logger, opts Options) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	rs := opts.Renderer
	if rs == nil {
		rs = renderer.NewService(logger)
	}
	style := opts.CodeStyle
	if style == "" {
		style = "github"
	}
	return &Exporter{
		renderer: rs,
		diagrams: &diagramEncoder{d2: opts.D2},
		logger:   logger.With("component", "exporter"),
		style:    style,
	}
}

// ExportPageOptions configures a single page export.
type ExportPageOptions struct {
	Writer  io.Writer
	Format  Format
	RootDir string
	Path    string
}

// ExportPage exports a single page in the specified format.
func (e *Exporter) ExportPage(ctx context.Context, opts ExportPageOptions) error {
	if err := validateExportPageOptions(opts); err != nil {
		return err
	}

	rootDir, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}

	absPath, err := resolveExportPath(rootDir, opts.Path)
	if err != nil {
		return err
	}

	info, raw, err := readExportSource(absPath, opts.Path)
	if err != nil {
		return err
	}

	rel := filepath.ToSlash(filepath.Clean(opts.Path))
	start := time.Now()
	switch opts.Format {
	case FormatHTML:
		err = e.exportHTML(ctx, rel, info.ModTime(), raw, opts.Writer)
	case FormatMarkdown:
		_, err = opts.Writer.Write(raw)
	case FormatPlainText:
		err = e.exportPlainText(ctx, rel, info.ModTime(), raw, opts.Writer)
	case FormatPDF:
		err = e.exportPDF(ctx, raw, opts.Writer)
	}
	if err != nil {
		return err
	}
	e.logger.Debug("page exported",
		slog.String("path", rel),
		slog.String("format", string(opts.Format)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func validateExportPageOptions(opts ExportPageOptions) error {
	if strings.TrimSpace(opts.RootDir) == "" {
		return errors.New("root directory is required")
	}
	if strings.TrimSpace(opts.Path) == "" {
		return errors.New("page path is required")
	}
	if opts.Writer == nil {
		return errors.New("writer is required")
	}
	if !IsValidFormat(string(opts.Format)) {
		return fmt.Errorf("unsupported format: %s (allowed: html, pdf, markdown, txt)", opts.Format)
	}
	return nil
}

func resolveExportPath(rootDir, pagePath string) (string, error) {
	cleanPath := filepath.Clean(pagePath)
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return "", ErrTraversal
	}
	if !tree.IsContentFile(cleanPath) {
		return "", fmt.Errorf("not a content file: %s", pagePath)
	}

	absPath, err := filepath.Abs(filepath.Join(rootDir, filepath.FromSlash(cleanPath)))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !strings.HasPrefix(absPath, rootDir+string(filepath.Separator)) {
		return "", errors.New("invalid path: must be within root directory")
	}
	return absPath, nil
}

func readExportSource(absPath, originalPath string) (os.FileInfo, []byte, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("page not found: %s", originalPath)
		}
		return nil, nil, fmt.Errorf("stat page: %w", err)
	}

	raw, err := os.ReadFile(absPath) //nolint:gosec // absPath constructed from validated root
	if err != nil {
		return nil, nil, fmt.Errorf("read page: %w", err)
	}
	return info, raw, nil
}

var standaloneTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{ .Title }}</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; line-height: 1.6; max-width: 800px; margin: 0 auto; padding: 2rem; color: #1f2328; }
    h1, h2, h3, h4 { margin-top: 1.5em; line-height: 1.2; }
    .heading-anchor { display: none; }
    pre { padding: 1em; border-radius: 6px; overflow-x: auto; background: var(--code-bg, #f6f8fa); }
    code { font-family: "SFMono-Regular", Consolas, Menlo, monospace; font-size: 0.9em; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #d0d7de; padding: 0.5em; }
    img, svg { max-width: 100%; height: auto; }
{{ .ThemeCSS }}
  </style>
</head>
<body>
{{ if .Title }}<h1>{{ .Title }}</h1>{{ end }}
{{ .HTML }}
</body>
</html>
`))

func (e *Exporter) exportHTML(ctx context.Context, rel string, modTime time.Time, raw []byte, w io.Writer) error {
	doc, err := e.renderer.Render(ctx, rel, modTime, raw)
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	//nolint:gosec // markup comes from the renderer and chroma
	data := struct {
		Title    string
		HTML     template.HTML
		ThemeCSS template.CSS
	}{
		Title:    doc.Metadata.Title,
		HTML:     template.HTML(doc.HTML),
		ThemeCSS: template.CSS(highlight.ThemeCSS(styles.Get(e.style))),
	}
	return standaloneTemplate.Execute(w, data)
}

func (e *Exporter) exportPlainText(ctx context.Context, rel string, modTime time.Time, raw []byte, w io.Writer) error {
	doc, err := e.renderer.Render(ctx, rel, modTime, raw)
	if err != nil {
		return fmt.Errorf("render text: %w", err)
	}
	text := strings.TrimSpace(doc.Text)
	if doc.Metadata.Title != "" && !strings.HasPrefix(text, doc.Metadata.Title) {
		text = doc.Metadata.Title + "\n\n" + text
	}
	_, err = io.WriteString(w, text+"\n")
	return err
}

func (e *Exporter) exportPDF(ctx context.Context, raw []byte, w io.Writer) error {
	prepared, err := e.diagrams.encode(ctx, stripAnnotations(raw))
	if err != nil {
		return fmt.Errorf("prepare diagrams: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			meta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle(e.style),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRenderer(pdf.New()),
	)

	if err := md.Convert(prepared, w); err != nil {
		return fmt.Errorf("convert markdown to PDF: %w", err)
	}
	return nil
}

// ContentType returns the MIME type for the given format.
func ContentType(format Format) string {
	switch format {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatPlainText:
		return "text/plain; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// FileExtension returns the file extension for the given format.
func FileExtension(format Format) string {
	switch format {
	case FormatHTML:
		return ".html"
	case FormatMarkdown:
		return ".md"
	case FormatPlainText:
		return ".txt"
	case FormatPDF:
		return ".pdf"
	default:
		return ""
	}
}
