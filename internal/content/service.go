// Package content keeps a live build of the content directory for the dev
// server: it watches for changes, rebuilds the registry and notifies
// subscribers.
package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sirily11/msbd5017-docs/internal/content/tree"
	"github.com/sirily11/msbd5017-docs/internal/renderer"
	"github.com/sirily11/msbd5017-docs/internal/search"
	"github.com/sirily11/msbd5017-docs/internal/site"
)

// Event types.
const (
	EventRebuild       = "rebuild"
	EventRebuildFailed = "rebuildFailed"
)

// Change kinds carried by rebuild events.
const (
	changeTreeUpdated = "treeUpdated"
	changeDeleted     = "deleted"
	changePageUpdated = "pageUpdated"
	changeUnknown     = "unknown"
)

// DefaultDebounce groups bursts of file events into one rebuild.
const DefaultDebounce = 100 * time.Millisecond

// Event describes change notifications emitted to subscribers.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Change    string    `json:"change,omitempty"`
	Paths     []string  `json:"paths,omitempty"`
	// Routes lists the pages whose source changed. Empty means the
	// navigation changed and every page is stale.
	Routes []string `json:"routes,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Service coordinates the live build, search index and change notifications.
type Service struct {
	ctx           context.Context
	logger        *slog.Logger
	watcher       *fsnotify.Watcher
	builder       *site.Builder
	index         *search.Index
	cancel        context.CancelFunc
	current       atomic.Pointer[site.Collected]
	subscribers   map[uint64]*subscriber
	pending       map[string]fsnotify.Op
	timer         *time.Timer
	root          string
	debounce      time.Duration
	subCounter    atomic.Uint64
	subsMu        sync.RWMutex
	pendingMu     sync.Mutex
	rebuildMu     sync.Mutex
	flushMu       sync.Mutex
	includeHidden bool
}

type subscriber struct {
	ctx context.Context
	ch  chan Event
}

// Options configures the content service.
type Options struct {
	Debounce      time.Duration
	IncludeHidden bool
}

// NewService builds root once and starts watching it.
func NewService(parentCtx context.Context, root string, builder *site.Builder, logger *slog.Logger, opts Options) (*Service, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	if builder == nil {
		return nil, errors.New("site builder must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)

	svc := &Service{
		root:          absRoot,
		builder:       builder,
		includeHidden: opts.IncludeHidden,
		debounce:      opts.Debounce,
		logger:        logger.With("component", "content_service"),
		ctx:           ctx,
		cancel:        cancel,
		subscribers:   make(map[uint64]*subscriber),
		pending:       make(map[string]fsnotify.Op),
		index:         search.NewIndex(logger, nil),
	}

	if err := svc.rebuild(ctx); err != nil {
		cancel()
		return nil, err
	}

	if err := svc.startWatcher(); err != nil {
		cancel()
		return nil, err
	}

	return svc, nil
}

// Close releases resources associated with the service.
func (s *Service) Close() error {
	s.cancel()
	s.pendingMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pendingMu.Unlock()
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Snapshot returns the latest successful build.
func (s *Service) Snapshot(ctx context.Context) (*site.Collected, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.current.Load()
	if c == nil {
		return nil, errors.New("content not built")
	}
	return c, nil
}

// CurrentTree returns the navigation tree of the latest build.
func (s *Service) CurrentTree(ctx context.Context) (*tree.Node, error) {
	c, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return c.Tree, nil
}

// Page returns the registry entry for route.
func (s *Service) Page(ctx context.Context, route string) (*site.Entry, error) {
	c, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := c.Registry.Get(route)
	if !ok {
		return nil, fmt.Errorf("%w: %s", site.ErrPageNotFound, route)
	}
	return entry, nil
}

// Search queries the index of the latest build.
func (s *Service) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	return s.index.Search(ctx, query, opts)
}

// SearchRecords returns the client search index of the latest build.
func (s *Service) SearchRecords() []search.Record {
	return s.index.Records()
}

// Root returns the absolute content directory.
func (s *Service) Root() string {
	return s.root
}

// Document loads and renders a content file by relative path.
func (s *Service) Document(ctx context.Context, relPath string) (renderer.Document, error) {
	if err := ctx.Err(); err != nil {
		return renderer.Document{}, err
	}

	rel, abs, err := s.resolveDocumentPath(relPath)
	if err != nil {
		return renderer.Document{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return renderer.Document{}, fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return renderer.Document{}, fmt.Errorf("path %s is a directory", rel)
	}

	raw, err := os.ReadFile(abs) //nolint:gosec // abs is validated against root directory
	if err != nil {
		return renderer.Document{}, fmt.Errorf("read document: %w", err)
	}

	// Content-relative paths keep cache keys aligned with Collect.
	return s.builder.Renderer().Render(ctx, rel, info.ModTime(), raw)
}

func (s *Service) resolveDocumentPath(relPath string) (string, string, error) {
	trimmed := strings.TrimSpace(relPath)
	if trimmed == "" {
		return "", "", fmt.Errorf("invalid path: %s", relPath)
	}
	clean := filepath.Clean(trimmed)
	if clean == "." || clean == "" {
		return "", "", fmt.Errorf("invalid path: %s", relPath)
	}
	if filepath.IsAbs(clean) {
		return "", "", fmt.Errorf("invalid path: %s", relPath)
	}
	if vol := filepath.VolumeName(clean); vol != "" {
		return "", "", fmt.Errorf("invalid path: %s", relPath)
	}

	clean = filepath.ToSlash(clean)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, "/../") {
		return "", "", fmt.Errorf("invalid path: %s", relPath)
	}
	if !tree.IsContentFile(clean) {
		return "", "", fmt.Errorf("not a content file: %s", relPath)
	}

	abs := filepath.Join(s.root, filepath.FromSlash(clean))
	relToRoot, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", "", fmt.Errorf("resolve document path: %w", err)
	}
	if relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(os.PathSeparator)) {
		return "", "", fmt.Errorf("resolved path escapes root: %s", relPath)
	}
	return clean, abs, nil
}

// Subscribe registers for change events. The returned channel will close when ctx is done.
func (s *Service) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 8)
	id := s.subCounter.Add(1)

	s.subsMu.Lock()
	s.subscribers[id] = &subscriber{ctx: ctx, ch: ch}
	s.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		s.removeSubscriber(id)
	}()

	return ch
}

func (s *Service) rebuild(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	collected, err := s.builder.Collect(ctx, s.root)
	if err != nil {
		return err
	}
	s.current.Store(collected)
	s.index.Replace(site.SearchDocuments(collected.Registry, s.builder.URL))
	return nil
}

func (s *Service) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	if err := s.watchRecursive(s.root); err != nil {
		return err
	}

	go s.runWatcher()
	return nil
}

func (s *Service) runWatcher() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("watcher error", slog.Any("err", err))
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) handleEvent(event fsnotify.Event) {
	if event.Name == "" {
		return
	}
	rel := s.relativePath(event.Name)
	s.logger.Debug("fsnotify event", slog.String("path", rel), slog.String("op", event.Op.String()))

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = s.watchRecursive(event.Name)
		}
	}
	if tree.IsContentFile(event.Name) && event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		s.builder.Renderer().Invalidate(rel)
	}

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[rel] |= event.Op
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.flush)
	} else {
		s.timer.Reset(s.debounce)
	}
}

// flush rebuilds once for every event gathered since the last flush. Flushes
// run one at a time, so each rebuild starts after the previous one is
// published and events reach subscribers in the order the changes happened.
func (s *Service) flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.pendingMu.Lock()
	pending := s.pending
	s.pending = make(map[string]fsnotify.Op)
	s.pendingMu.Unlock()
	if len(pending) == 0 || s.ctx.Err() != nil {
		return
	}

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	change := changeUnknown
	var routes []string
	for _, p := range paths {
		kind := classifyEvent(filepath.Join(s.root, filepath.FromSlash(p)), pending[p], tree.IsContentFile(p))
		change = mergeChange(change, kind)
		if kind == changePageUpdated {
			routes = append(routes, tree.RouteFor(p))
		}
	}
	if change != changePageUpdated {
		routes = nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	evt := Event{Type: EventRebuild, Change: change, Paths: paths, Routes: routes, Timestamp: time.Now()}
	if err := s.rebuild(ctx); err != nil {
		s.logger.Error("rebuild failed", slog.Any("err", err))
		evt = Event{Type: EventRebuildFailed, Paths: paths, Error: err.Error(), Timestamp: time.Now()}
	}
	s.broadcast(evt)
}

// mergeChange keeps the broadest change seen: any tree change wins over page
// updates.
func mergeChange(current, next string) string {
	switch {
	case current == changeUnknown:
		return next
	case next == changeUnknown, current == next:
		return current
	case current == changePageUpdated:
		return next
	case next == changePageUpdated:
		return current
	default:
		return changeTreeUpdated
	}
}

func (s *Service) broadcast(evt Event) {
	s.subsMu.RLock()
	var stale []uint64
	for id, sub := range s.subscribers {
		select {
		case <-sub.ctx.Done():
			stale = append(stale, id)
		case <-s.ctx.Done():
			stale = append(stale, id)
		case sub.ch <- evt:
		default:
			// drop event when subscriber lags
		}
	}
	s.subsMu.RUnlock()

	for _, id := range stale {
		s.removeSubscriber(id)
	}
}

func (s *Service) removeSubscriber(id uint64) {
	s.subsMu.Lock()
	if sub, ok := s.subscribers[id]; ok {
		close(sub.ch)
		delete(s.subscribers, id)
	}
	s.subsMu.Unlock()
}

func (s *Service) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !s.includeHidden && strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			if err := s.watcher.Add(path); err != nil {
				s.logger.Warn("failed to watch directory", slog.String("path", path), slog.Any("err", err))
			}
		}
		return nil
	})
}

func (s *Service) relativePath(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func classifyEvent(path string, op fsnotify.Op, isContent bool) string {
	switch {
	case op&fsnotify.Remove != 0:
		if isContent {
			if _, err := os.Stat(path); err == nil {
				return changePageUpdated
			}
			return changeDeleted
		}
		return changeTreeUpdated
	case op&fsnotify.Rename != 0:
		return changeTreeUpdated
	case op&fsnotify.Create != 0:
		return changeTreeUpdated
	case op&fsnotify.Write != 0:
		if isContent {
			return changePageUpdated
		}
		return changeTreeUpdated
	default:
		return changeUnknown
	}
}

// DebugStatus returns diagnostic information for the health endpoint.
func (s *Service) DebugStatus() map[string]any {
	res := map[string]any{
		"root":          s.root,
		"includeHidden": s.includeHidden,
		"indexed":       s.index.Len(),
	}
	if c := s.current.Load(); c != nil {
		res["pages"] = c.Registry.Len()
	}
	if w := s.watcher; w != nil {
		res["watcher"] = map[string]any{
			"platform": runtime.GOOS,
		}
	}
	return res
}
