// Package tree builds the navigation tree of a content directory.
//
// Directory and file names may carry a numeric ordering prefix
// ("1.getting-started/5.hardhat/page.md"). The prefix orders siblings and is
// stripped from routes and titles. A page.md or index.md file is the page of
// its directory.
package tree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sirily11/msbd5017-docs/internal/renderer"
)

// NodeType identifies what a tree node represents.
type NodeType string

// Node type constants for directory and file entries.
const (
	NodeTypeDirectory NodeType = "directory"
	NodeTypeFile      NodeType = "file"
)

// Unordered is the Order of entries without a numeric prefix.
const Unordered = -1

// Node represents a navigation entry (directory or content file).
type Node struct {
	Modified time.Time          `json:"modified"`
	Metadata *renderer.Metadata `json:"metadata,omitempty"`
	Name     string             `json:"name"`
	RawName  string             `json:"rawName"`
	// RelativePath is the slash-separated path of the entry under the root.
	RelativePath string `json:"relativePath"`
	// Source is the content file holding this node's page. Directories
	// without a page.md or index.md have none.
	Source   string             `json:"source,omitempty"`
	Route    string             `json:"route"`
	Type     NodeType           `json:"type"`
	Title    string             `json:"title"`
	Sections []renderer.Section `json:"sections,omitempty"`
	Children []*Node            `json:"children,omitempty"`
	Size     int64              `json:"size"`
	Order    int                `json:"order"`
}

// HasPage reports whether the node renders a page.
func (n *Node) HasPage() bool {
	return n != nil && n.Source != ""
}

// Options control how the tree is constructed.
type Options struct {
	// Renderer, when set, supplies frontmatter titles and sections.
	Renderer      *renderer.Service
	ExcludeDirs   []string
	IncludeHidden bool
}

// Build walks the root directory and returns a tree of content.
func Build(ctx context.Context, root string, opts Options) (*Node, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	b := newBuilder(absRoot, opts)
	return b.buildDir(ctx, absRoot, "")
}

// builder carries state during tree construction.
type builder struct {
	exclude map[string]struct{}
	root    string
	opts    Options
}

var defaultExcludedDirs = []string{
	"node_modules",
	"vendor",
	"venv",
	".venv",
	"deps",
	"third_party",
	".git",
	".hg",
	".svn",
	".idea",
	".vscode",
	"__pycache__",
}

// pageFiles name the files that hold their directory's page, by priority.
var pageFiles = []string{"page.md", "page.mdx", "index.md", "index.mdx"}

func newBuilder(absRoot string, opts Options) *builder {
	exclude := make(map[string]struct{})
	for _, name := range defaultExcludedDirs {
		if name = strings.TrimSpace(name); name != "" {
			exclude[strings.ToLower(name)] = struct{}{}
		}
	}
	for _, name := range opts.ExcludeDirs {
		if name = strings.TrimSpace(name); name != "" {
			exclude[strings.ToLower(name)] = struct{}{}
		}
	}
	return &builder{
		root:    absRoot,
		opts:    opts,
		exclude: exclude,
	}
}

func (b *builder) isExcluded(name string) bool {
	_, ok := b.exclude[strings.ToLower(name)]
	return ok
}

//nolint:gocognit,gocyclo // directory traversal naturally requires multiple decision points
func (b *builder) buildDir(ctx context.Context, absPath, relPath string) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", absPath, err)
	}

	var (
		children []*Node
		pageFile fs.DirEntry
		pageRank = len(pageFiles)
	)
	for _, entry := range entries {
		if !b.opts.IncludeHidden && strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		childRel := path.Join(relPath, entry.Name())
		childAbs := filepath.Join(absPath, entry.Name())

		if entry.IsDir() {
			if b.isExcluded(entry.Name()) {
				continue
			}
			childNode, err := b.buildDir(ctx, childAbs, childRel)
			if err != nil {
				return nil, err
			}
			if childNode != nil {
				children = append(children, childNode)
			}
			continue
		}

		if !IsContentFile(entry.Name()) {
			continue
		}
		if rank := pageRankOf(entry.Name()); rank < pageRank {
			if pageFile != nil {
				node, err := b.buildFileNode(ctx, filepath.Join(absPath, pageFile.Name()), path.Join(relPath, pageFile.Name()), pageFile)
				if err != nil {
					return nil, err
				}
				children = append(children, node)
			}
			pageFile, pageRank = entry, rank
			continue
		}

		node, err := b.buildFileNode(ctx, childAbs, childRel, entry)
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}

	if len(children) == 0 && pageFile == nil && relPath != "" {
		return nil, nil
	}

	sortChildren(children)

	rawName := filepath.Base(absPath)
	order, name := Unordered, rawName
	if relPath != "" {
		order, name = SplitOrder(rawName)
	}
	dirInfo, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat directory %s: %w", absPath, err)
	}

	node := &Node{
		Name:         name,
		RawName:      rawName,
		RelativePath: relPath,
		Route:        RouteFor(relPath),
		Type:         NodeTypeDirectory,
		Title:        displayName(name),
		Modified:     dirInfo.ModTime(),
		Children:     children,
		Order:        order,
	}
	if pageFile != nil {
		if err := b.attachPage(ctx, node, filepath.Join(absPath, pageFile.Name()), path.Join(relPath, pageFile.Name()), pageFile); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func (b *builder) buildFileNode(ctx context.Context, absPath, relPath string, entry fs.DirEntry) (*Node, error) {
	order, name := SplitOrder(trimExt(path.Base(relPath)))
	node := &Node{
		Name:         name,
		RawName:      path.Base(relPath),
		RelativePath: relPath,
		Route:        RouteFor(relPath),
		Type:         NodeTypeFile,
		Title:        displayName(name),
		Order:        order,
	}
	if IsPageFile(node.RawName) {
		// A second page file in one directory keeps its own name.
		node.Route = path.Join(RouteFor(path.Dir(relPath)), name)
	}
	if err := b.attachPage(ctx, node, absPath, relPath, entry); err != nil {
		return nil, err
	}
	return node, nil
}

// attachPage records the page source of node and, with a renderer, its
// frontmatter title and sections.
func (b *builder) attachPage(ctx context.Context, node *Node, absPath, relPath string, entry fs.DirEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := entry.Info()
	if err != nil {
		return fmt.Errorf("stat file %s: %w", absPath, err)
	}
	node.Source = relPath
	node.Size = info.Size()
	if info.ModTime().After(node.Modified) {
		node.Modified = info.ModTime()
	}

	if b.opts.Renderer == nil {
		return nil
	}

	content, err := os.ReadFile(absPath) //nolint:gosec // absPath is constructed from validated root
	if err != nil {
		return fmt.Errorf("read file %s: %w", absPath, err)
	}
	doc, err := b.opts.Renderer.Render(ctx, relPath, info.ModTime(), content)
	if err != nil {
		return fmt.Errorf("render metadata for %s: %w", relPath, err)
	}
	if !doc.Metadata.IsZero() {
		meta := doc.Metadata
		node.Metadata = &meta
		if meta.Title != "" {
			node.Title = meta.Title
		}
	}
	node.Sections = doc.Sections
	return nil
}

// sortChildren orders prefixed entries by prefix, then the rest with
// directories first, each group by title.
func sortChildren(children []*Node) {
	sort.SliceStable(children, func(i, j int) bool {
		a, b := children[i], children[j]
		switch {
		case a.Order != Unordered && b.Order != Unordered:
			if a.Order != b.Order {
				return a.Order < b.Order
			}
		case a.Order != Unordered:
			return true
		case b.Order != Unordered:
			return false
		}
		if a.Type != b.Type {
			return a.Type == NodeTypeDirectory
		}
		return strings.Compare(a.Title, b.Title) < 0
	})
}

// IsContentFile reports whether name is a markdown content file.
func IsContentFile(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".mdx") || strings.HasSuffix(name, ".markdown")
}

// IsPageFile reports whether name holds its directory's page.
func IsPageFile(name string) bool {
	return pageRankOf(name) < len(pageFiles)
}

func pageRankOf(name string) int {
	name = strings.ToLower(name)
	for i, candidate := range pageFiles {
		if name == candidate {
			return i
		}
	}
	return len(pageFiles)
}

var orderPrefix = regexp.MustCompile(`^(\d+)\.(.+)$`)

// SplitOrder separates a numeric ordering prefix from name.
func SplitOrder(name string) (int, string) {
	m := orderPrefix.FindStringSubmatch(name)
	if m == nil {
		return Unordered, name
	}
	order, err := strconv.Atoi(m[1])
	if err != nil {
		return Unordered, name
	}
	return order, m[2]
}

// RouteFor maps a content-relative path (file or directory) to its page
// route. Ordering prefixes and extensions are dropped and page files resolve
// to their directory: "1.basics/2.wallet/page.md" -> "/basics/wallet".
func RouteFor(relPath string) string {
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	if relPath == "" || relPath == "." {
		return "/"
	}
	parts := strings.Split(relPath, "/")
	last := parts[len(parts)-1]
	if IsContentFile(last) {
		if IsPageFile(last) {
			parts = parts[:len(parts)-1]
		} else {
			parts[len(parts)-1] = trimExt(last)
		}
	}
	for i, part := range parts {
		_, parts[i] = SplitOrder(part)
	}
	return "/" + strings.Join(parts, "/")
}

func trimExt(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

var titleCaser = cases.Title(language.English)

// displayName turns a stripped entry name into a title: "hardhat-setup" ->
// "Hardhat Setup".
func displayName(name string) string {
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return titleCaser.String(strings.TrimSpace(name))
}

// Walk calls fn for every node in pre-order.
func Walk(root *Node, fn func(*Node)) {
	if root == nil {
		return
	}
	fn(root)
	for _, child := range root.Children {
		Walk(child, fn)
	}
}

// Pages returns every node that renders a page, in navigation order.
func Pages(root *Node) []*Node {
	var pages []*Node
	Walk(root, func(n *Node) {
		if n.HasPage() {
			pages = append(pages, n)
		}
	})
	return pages
}

// Find returns the node serving route.
func Find(root *Node, route string) *Node {
	var found *Node
	Walk(root, func(n *Node) {
		if found == nil && n.Route == route {
			found = n
		}
	})
	return found
}

// PathTo returns the chain of nodes from root to the node serving route.
func PathTo(root *Node, route string) []*Node {
	if root == nil {
		return nil
	}
	if root.Route == route {
		return []*Node{root}
	}
	for _, child := range root.Children {
		if chain := PathTo(child, route); len(chain) > 0 {
			return append([]*Node{root}, chain...)
		}
	}
	return nil
}

// Neighbors returns the pages before and after route in navigation order.
func Neighbors(root *Node, route string) (prev, next *Node) {
	pages := Pages(root)
	for i, p := range pages {
		if p.Route != route {
			continue
		}
		if i > 0 {
			prev = pages[i-1]
		}
		if i+1 < len(pages) {
			next = pages[i+1]
		}
		return prev, next
	}
	return nil, nil
}
