package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sirily11/msbd5017-docs/internal/exporter"
	"github.com/sirily11/msbd5017-docs/internal/search"
	"github.com/sirily11/msbd5017-docs/internal/site"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.content.DebugStatus())
}

func (s *Server) pageOptions() site.Options {
	return site.Options{
		SiteTitle:     s.cfg.SiteTitle,
		BaseURL:       s.cfg.BaseURL,
		DarkModeFirst: s.cfg.DarkModeFirst,
		SearchIndex:   true,
		LiveReload:    true,
	}
}

// handleRoot serves the root page, or redirects to the first page when the
// content has no root page.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.content.Snapshot(r.Context())
	if err != nil {
		http.Error(w, "content not ready", http.StatusServiceUnavailable)
		return
	}
	if _, ok := snap.Registry.Get("/"); ok {
		s.renderPage(w, r, "/")
		return
	}
	entries := snap.Registry.Entries()
	if len(entries) == 0 {
		http.Error(w, "no pages found", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, s.builder.URL(entries[0].Route), http.StatusFound)
}

func (s *Server) handlePageHTML(w http.ResponseWriter, r *http.Request) {
	route, err := routeParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.renderPage(w, r, route)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, route string) {
	ctx := r.Context()
	snap, err := s.content.Snapshot(ctx)
	if err != nil {
		http.Error(w, "content not ready", http.StatusServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	if err := s.builder.RenderPage(&buf, snap, route, s.pageOptions()); err != nil {
		if errors.Is(err, site.ErrPageNotFound) {
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		s.logger.ErrorContext(ctx, "render page failed", slog.String("route", route), slog.Any("err", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.DebugContext(ctx, "write page failed", slog.Any("err", err))
	}
}

func (s *Server) handleNav(w http.ResponseWriter, r *http.Request) {
	root, err := s.content.CurrentTree(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse(err.Error()))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"root": root})
}

func (s *Server) handleSearchIndex(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"records": s.content.SearchRecords()})
}

func (s *Server) handleThemeCSS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write([]byte(site.ThemeCSS(s.cfg.CodeTheme))); err != nil {
		s.logger.Debug("write theme css failed", slog.Any("err", err))
	}
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	route, err := routeParam(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	entry, err := s.content.Page(r.Context(), route)
	if err != nil {
		s.respondLookupError(w, err)
		return
	}

	resp := struct {
		*site.Entry
		URL      string   `json:"url"`
		HTML     string   `json:"html"`
		Bindings []string `json:"bindings"`
	}{
		Entry:    entry,
		URL:      s.builder.URL(entry.Route),
		HTML:     entry.Document.HTML,
		Bindings: entry.Bindings.Names(),
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	route, err := routeParam(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	entry, err := s.content.Page(r.Context(), route)
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"route":    entry.Route,
		"sections": entry.Sections,
	})
}

func (s *Server) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, site.ErrPageNotFound) {
		respondJSON(w, http.StatusNotFound, errorResponse("page not found"))
		return
	}
	respondJSON(w, http.StatusServiceUnavailable, errorResponse(err.Error()))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse("query parameter 'q' is required"))
		return
	}

	var opts search.Options
	if v := r.URL.Query().Get("caseSensitive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse("invalid caseSensitive value"))
			return
		}
		opts.CaseSensitive = b
	}
	if v := r.URL.Query().Get("context"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondJSON(w, http.StatusBadRequest, errorResponse("invalid context value"))
			return
		}
		opts.Context = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondJSON(w, http.StatusBadRequest, errorResponse("invalid limit value"))
			return
		}
		opts.Limit = n
	}

	results, err := s.content.Search(ctx, query, opts)
	if err != nil {
		s.logger.WarnContext(ctx, "search failed", slog.Any("err", err))
		respondJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	resp := struct {
		Query   string          `json:"query"`
		Results []search.Result `json:"results"`
		Options search.Options  `json:"options"`
		Count   int             `json:"count"`
	}{
		Query:   query,
		Count:   len(results),
		Results: results,
		Options: opts,
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := s.content.Subscribe(ctx)

	if _, err := w.Write([]byte(": ready\n\n")); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := encodeJSON(evt)
			if err != nil {
				s.logger.WarnContext(ctx, "encode sse event failed", slog.Any("err", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleExport streams one page as a download. The page is chosen by its
// content path or by its route.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	path := strings.TrimSpace(query.Get("path"))
	if path == "" && query.Get("route") != "" {
		entry, err := s.content.Page(ctx, normalizeRoute(query.Get("route")))
		if err != nil {
			s.respondLookupError(w, err)
			return
		}
		path = entry.Source
	}
	if path == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse("path parameter is required"))
		return
	}

	formatName := query.Get("format")
	if strings.TrimSpace(formatName) == "" {
		formatName = string(exporter.FormatHTML)
	}
	format, ok := exporter.ParseFormat(formatName)
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorResponse("invalid format. Supported formats: html, pdf, markdown, txt"))
		return
	}

	// Render once up front so bad paths fail before headers are sent.
	if _, err := s.content.Document(ctx, path); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		s.logger.WarnContext(ctx, "export document rejected", slog.Any("err", err), slog.String("path", path))
		respondJSON(w, status, errorResponse("document not found"))
		return
	}

	var buf bytes.Buffer
	opts := exporter.ExportPageOptions{
		RootDir: s.content.Root(),
		Path:    path,
		Format:  format,
		Writer:  &buf,
	}
	if err := s.exporter.ExportPage(ctx, opts); err != nil {
		s.logger.ErrorContext(ctx, "export failed", slog.Any("err", err), slog.String("path", path), slog.String("format", string(format)))
		respondJSON(w, http.StatusInternalServerError, errorResponse("export failed"))
		return
	}

	filename := sanitizeFilename(path) + exporter.FileExtension(format)
	w.Header().Set("Content-Type", exporter.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.DebugContext(ctx, "write export failed", slog.Any("err", err))
	}
}

// handleMedia serves images and other files stored next to the content.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawPath, err := parseWildcardPath(chi.URLParam(r, "*"))
	if err != nil {
		s.respondPathError(w, err)
		return
	}

	cleanPath := filepath.Clean(rawPath)
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		s.logger.WarnContext(ctx, "invalid media path attempted", slog.String("path", rawPath))
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	absRoot := s.content.Root()
	absPath, err := filepath.Abs(filepath.Join(absRoot, filepath.FromSlash(cleanPath)))
	if err != nil || !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		s.logger.WarnContext(ctx, "media path outside root directory attempted", slog.String("path", rawPath))
		http.Error(w, "Invalid path", http.StatusForbidden)
		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		s.logger.WarnContext(ctx, "failed to stat media file", slog.Any("err", err), slog.String("path", rawPath))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		http.Error(w, "Path is a directory", http.StatusBadRequest)
		return
	}

	http.ServeFile(w, r, absPath)
}
