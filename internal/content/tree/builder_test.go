package tree_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirily11/msbd5017-docs/internal/content/tree"
	"github.com/sirily11/msbd5017-docs/internal/renderer"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestBuildGeneratesTreeWithMetadata(t *testing.T) {
	t.Parallel()
	root := filepath.Join("..", "..", "..", "testdata", "content")
	svc := renderer.NewService(nil)

	node, err := tree.Build(context.Background(), root, tree.Options{Renderer: svc})
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, tree.NodeTypeDirectory, node.Type)
	assert.Equal(t, "/", node.Route)
	assert.Equal(t, "page.md", node.Source)

	require.GreaterOrEqual(t, len(node.Children), 2)
	gettingStarted := node.Children[0]
	assert.Equal(t, "getting-started", gettingStarted.Name)
	assert.Equal(t, 1, gettingStarted.Order)
	assert.Equal(t, "1.getting-started", gettingStarted.RawName)

	hardhat := tree.Find(node, "/getting-started/hardhat")
	require.NotNil(t, hardhat)
	assert.Equal(t, "1.getting-started/5.hardhat/page.md", hardhat.Source)
	assert.Equal(t, "Hardhat", hardhat.Title)
	assert.NotNil(t, hardhat.Metadata)
	require.NotEmpty(t, hardhat.Sections)
	assert.Equal(t, "install", hardhat.Sections[0].ID)

	wallet := tree.Find(node, "/getting-started/wallet-setup")
	require.NotNil(t, wallet)
	assert.Equal(t, "Wallet Setup", wallet.Title)
	assert.Nil(t, wallet.Metadata, "no frontmatter")

	for i, child := range gettingStarted.Children[1:] {
		prev := gettingStarted.Children[i]
		if child.Order != tree.Unordered {
			assert.LessOrEqual(t, prev.Order, child.Order, "%s before %s", prev.RawName, child.RawName)
		}
	}
}

func TestRouteFor(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                                    "/",
		"page.md":                             "/",
		"index.mdx":                           "/",
		"1.getting-started/5.hardhat/page.md": "/getting-started/hardhat",
		"1.getting-started/2.wallet.md":       "/getting-started/wallet",
		"guides/advanced_topics.markdown":     "/guides/advanced_topics",
		"1.getting-started":                   "/getting-started",
		"10.x/index.md":                       "/x",
	}
	for in, want := range cases {
		assert.Equal(t, want, tree.RouteFor(in), "RouteFor(%q)", in)
	}
}

func TestSplitOrder(t *testing.T) {
	t.Parallel()

	order, name := tree.SplitOrder("12.deploy")
	assert.Equal(t, 12, order)
	assert.Equal(t, "deploy", name)

	order, name = tree.SplitOrder("v1.2")
	assert.Equal(t, tree.Unordered, order)
	assert.Equal(t, "v1.2", name)
}

func TestOrderingAndPages(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "zeta.md", "# Zeta")
	writeFile(t, root, "2.second/page.md", "# Second")
	writeFile(t, root, "2.second/index.md", "# Old index")
	writeFile(t, root, "1.first.md", "# First")
	writeFile(t, root, "alpha/notes.md", "# Notes")
	writeFile(t, root, "empty/readme.txt", "ignored")

	node, err := tree.Build(context.Background(), root, tree.Options{})
	require.NoError(t, err)

	var names []string
	for _, child := range node.Children {
		names = append(names, child.Name)
	}
	assert.Equal(t, []string{"first", "second", "alpha", "zeta"}, names)

	second := node.Children[1]
	assert.Equal(t, "2.second/page.md", second.Source, "page.md wins over index.md")
	assert.Equal(t, "/second", second.Route)
	require.Len(t, second.Children, 1)
	assert.Equal(t, "/second/index", second.Children[0].Route)

	var routes []string
	for _, p := range tree.Pages(node) {
		routes = append(routes, p.Route)
	}
	assert.Equal(t, []string{"/first", "/second", "/second/index", "/alpha/notes", "/zeta"}, routes)

	prev, next := tree.Neighbors(node, "/second")
	require.NotNil(t, prev)
	require.NotNil(t, next)
	assert.Equal(t, "/first", prev.Route)
	assert.Equal(t, "/second/index", next.Route)

	chain := tree.PathTo(node, "/alpha/notes")
	require.Len(t, chain, 3)
	assert.Equal(t, "alpha", chain[1].Name)
}

func TestHiddenFilesExcludedByDefault(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "visible.md", "# Visible")
	writeFile(t, root, ".hidden.md", "# Hidden")
	writeFile(t, root, ".drafts/secret.md", "# Secret")

	node, err := tree.Build(context.Background(), root, tree.Options{})
	require.NoError(t, err)

	tree.Walk(node, func(n *tree.Node) {
		if n != node {
			assert.False(t, strings.HasPrefix(n.RawName, "."), "hidden entry %s", n.RelativePath)
		}
	})

	withHidden, err := tree.Build(context.Background(), root, tree.Options{IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, withHidden.Children, 3)
}

func TestDependencyDirectoriesExcluded(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "docs/overview.md", "# Overview")
	writeFile(t, root, "node_modules/lib/README.md", "# Should not show")
	writeFile(t, root, "drafts/wip.md", "# WIP")

	node, err := tree.Build(context.Background(), root, tree.Options{ExcludeDirs: []string{"Drafts"}})
	require.NoError(t, err)

	for _, child := range node.Children {
		assert.NotContains(t, child.RelativePath, "node_modules")
		assert.NotContains(t, child.RelativePath, "drafts")
	}
}
