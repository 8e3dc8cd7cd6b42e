package content_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirily11/msbd5017-docs/internal/content"
	"github.com/sirily11/msbd5017-docs/internal/search"
	"github.com/sirily11/msbd5017-docs/internal/site"
)

func newService(t *testing.T) (*content.Service, string) {
	t.Helper()
	src := filepath.Join("..", "..", "testdata", "content")
	dst := t.TempDir()
	copyDir(t, src, dst)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder, err := site.New(site.Config{Logger: logger})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc, err := content.NewService(ctx, dst, builder, logger, content.Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, dst
}

func TestServiceBuildsOnStart(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, snap.Registry.Len())

	entry, err := svc.Page(context.Background(), "/smart-contracts/erc20")
	require.NoError(t, err)
	assert.Equal(t, "ERC-20 Tokens", entry.Title)
	_, err = svc.Page(context.Background(), "/nope")
	assert.Error(t, err)

	results, err := svc.Search(context.Background(), "hardhat", search.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "/getting-started/hardhat", results[0].Route)
	assert.Equal(t, search.KindPage, results[0].Kind)
}

func TestServiceDocumentRejectsEscapes(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)

	doc, err := svc.Document(context.Background(), "1.getting-started/2.wallet-setup.md")
	require.NoError(t, err)
	assert.Len(t, doc.Sections, 3)

	for _, bad := range []string{"", "../outside.md", "/etc/passwd.md", "a/../../b.md", "notes.txt"} {
		_, err := svc.Document(context.Background(), bad)
		assert.Error(t, err, "path %q", bad)
	}
}

func TestServiceRebuildsOnFileChange(t *testing.T) {
	t.Parallel()
	svc, dst := newService(t)

	subCtx, subCancel := context.WithCancel(context.Background())
	ch := svc.Subscribe(subCtx)
	t.Cleanup(subCancel)

	// Give the watcher time to attach.
	time.Sleep(200 * time.Millisecond)

	target := filepath.Join(dst, "1.getting-started", "2.wallet-setup.md")
	require.NoError(t, os.WriteFile(target, []byte("# Wallet setup\n\n## Fresh section\n"), 0o644))

	timeout := time.After(3 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Type != content.EventRebuild || !slices.Contains(evt.Paths, "1.getting-started/2.wallet-setup.md") {
				continue
			}
			if len(evt.Routes) > 0 {
				assert.Contains(t, evt.Routes, "/getting-started/wallet-setup")
			}
			entry, err := svc.Page(context.Background(), "/getting-started/wallet-setup")
			require.NoError(t, err)
			if len(entry.Sections) == 1 && entry.Sections[0].ID == "fresh-section" {
				return
			}
		case <-timeout:
			require.FailNow(t, "no rebuild event for the changed page")
		}
	}
}

func TestServiceReportsRebuildFailure(t *testing.T) {
	t.Parallel()
	svc, dst := newService(t)

	subCtx, subCancel := context.WithCancel(context.Background())
	ch := svc.Subscribe(subCtx)
	t.Cleanup(subCancel)

	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dst, "broken.md"), []byte("```nosuchlang\nx\n```\n"), 0o644))

	timeout := time.After(3 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Type != content.EventRebuildFailed {
				continue
			}
			assert.NotEmpty(t, evt.Error)
			snap, err := svc.Snapshot(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 6, snap.Registry.Len(), "previous build stays current")
			return
		case <-timeout:
			require.FailNow(t, "no rebuildFailed event")
		}
	}
}

func copyDir(t *testing.T, src, dst string) {
	t.Helper()
	require.NoError(t, filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	}))
}
