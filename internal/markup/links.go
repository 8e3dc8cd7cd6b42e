package markup

import (
	"path"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// LinkResolver maps a content-relative file path (already joined with the
// linking document's directory) to a page URL. It reports false for paths it
// does not know, which are left untouched.
type LinkResolver func(target string) (string, bool)

// linkTransformer rewrites relative links to .md files into page URLs.
type linkTransformer struct {
	resolve LinkResolver
}

func (t *linkTransformer) Transform(node *ast.Document, _ text.Reader, pc parser.Context) {
	currentPath := ""
	if v := pc.Get(docPathKey); v != nil {
		if str, ok := v.(string); ok {
			currentPath = str
		}
	}
	currentDir := path.Dir(currentPath)

	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			t.transformLink(link, currentDir)
		}
		return ast.WalkContinue, nil
	})
}

func (t *linkTransformer) transformLink(link *ast.Link, currentDir string) {
	dest := string(link.Destination)
	if dest == "" || isExternalLink(dest) || strings.HasPrefix(dest, "#") {
		return
	}

	target, fragment, _ := strings.Cut(dest, "#")
	if !strings.HasSuffix(target, ".md") && !strings.HasSuffix(target, ".mdx") {
		return
	}

	url, ok := t.resolve(normalizeContentPath(target, currentDir))
	if !ok {
		return
	}
	if fragment != "" {
		url += "#" + fragment
	}
	link.Destination = []byte(url)
}

func isExternalLink(dest string) bool {
	return strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://") || strings.HasPrefix(dest, "mailto:")
}

func normalizeContentPath(dest, currentDir string) string {
	if !strings.HasPrefix(dest, "/") {
		if currentDir != "" && currentDir != "." {
			dest = path.Join(currentDir, dest)
		}
		dest = path.Clean(dest)
	}
	return strings.TrimPrefix(dest, "/")
}
