// Package server provides the development HTTP server: rendered pages with
// live reload, a JSON API over the current build, single page export and
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sirily11/msbd5017-docs/internal/config"
	"github.com/sirily11/msbd5017-docs/internal/content"
	"github.com/sirily11/msbd5017-docs/internal/exporter"
	"github.com/sirily11/msbd5017-docs/internal/site"
	"github.com/sirily11/msbd5017-docs/static"
)

// Server wraps the HTTP server and the services it exposes.
type Server struct { //nolint:govet // field order favors logical grouping over padding optimizations
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	content    *content.Service
	builder    *site.Builder
	exporter   *exporter.Exporter
	metrics    http.Handler
	cfg        config.Config
}

// Deps are the services the server exposes.
type Deps struct {
	Content  *content.Service
	Builder  *site.Builder
	Exporter *exporter.Exporter
	// Metrics serves /metrics; nil leaves the route unregistered.
	Metrics http.Handler
}

// New constructs a Server and registers its routes.
func New(cfg config.Config, logger *slog.Logger, deps Deps) (*Server, error) {
	if deps.Content == nil {
		return nil, errors.New("content service is required")
	}
	if deps.Builder == nil {
		return nil, errors.New("site builder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	exp := deps.Exporter
	if exp == nil {
		exp = exporter.New(logger, exporter.Options{Renderer: deps.Builder.Renderer(), CodeStyle: cfg.CodeTheme})
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger.With("component", "http"),
		content:  deps.Content,
		builder:  deps.Builder,
		exporter: exp,
		metrics:  deps.Metrics,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger, s.cfg.Verbose))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, compressedTypes...))

	basePath := "/" + strings.Trim(s.cfg.BasePath, "/")
	if basePath == "/" {
		s.mountSite(r)
		return r
	}

	sub := chi.NewRouter()
	s.mountSite(sub)
	r.Mount(basePath, sub)
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, basePath, http.StatusFound)
	})
	return r
}

func (s *Server) mountSite(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Get("/events", s.handleEvents)
	r.Get("/nav.json", s.handleNav)
	r.Get("/search.json", s.handleSearchIndex)

	r.Get("/assets/css/code-theme.css", s.handleThemeCSS)
	assets := http.StripPrefix(strings.TrimSuffix(s.builder.URL("/assets"), "/")+"/", http.FileServer(s.resolveStaticFS()))
	r.Handle("/assets/*", assets)
	r.Get("/media/*", s.handleMedia)

	r.Route("/api", func(r chi.Router) {
		r.Get("/nav", s.handleNav)
		r.Get("/pages/*", s.handlePage)
		r.Get("/sections/*", s.handleSections)
		r.Get("/search", s.handleSearch)
		r.Get("/export", s.handleExport)
	})

	r.Get("/", s.handleRoot)
	r.Get("/*", s.handlePageHTML)
}

func (s *Server) resolveStaticFS() http.FileSystem {
	dir := strings.TrimSpace(s.cfg.AssetsDir)
	if dir != "" {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			s.logger.Debug("serving assets from filesystem", slog.String("dir", dir))
			return http.Dir(dir)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("assets dir check failed", slog.String("dir", dir), slog.Any("err", err))
		}
	}
	s.logger.Debug("serving embedded assets")
	return static.HTTP()
}

// Start runs the HTTP server and optionally opens the browser.
// The server listens on the configured port, or a free one when cfg.Port is 0,
// and shuts down gracefully when ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	if s.cfg.Port == 0 {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		_ = listener.Close()
		return errors.New("unexpected listener address type")
	}
	serverURL := fmt.Sprintf("http://localhost:%d%s", tcpAddr.Port, strings.TrimSuffix(s.builder.URL("/"), "/"))

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Event streams stay open; handlers bound their own work.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if _, err := fmt.Fprintf(os.Stdout, "docsite listening on %s\n", serverURL); err != nil {
			s.logger.Warn("failed to announce server address", slog.String("url", serverURL), slog.Any("err", err))
		}
		errCh <- s.httpServer.Serve(listener)
	}()

	if s.cfg.AutoOpen {
		go s.openBrowserWhenReady(ctx, serverURL)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorContext(ctx, "graceful shutdown failed", slog.Any("err", err))
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) openBrowserWhenReady(ctx context.Context, url string) {
	timer := time.NewTimer(300 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		if err := openBrowser(ctx, url); err != nil {
			s.logger.WarnContext(ctx, "auto-open failed", slog.String("url", url), slog.Any("err", err))
		}
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	return cmd.Start()
}
