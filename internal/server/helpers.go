package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

var (
	errPathRequired        = errors.New("path is required")
	errInvalidPathEncoding = errors.New("invalid path encoding")
)

// respondJSON sends a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.Any("err", err))
	}
}

// encodeJSON encodes data to JSON string.
func encodeJSON(data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func errorResponse(message string) map[string]string {
	return map[string]string{"error": message}
}

func parseWildcardPath(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errPathRequired
	}
	decoded, err := url.PathUnescape(trimmed)
	if err != nil {
		return "", errInvalidPathEncoding
	}
	p := strings.TrimSpace(decoded)
	if p == "" {
		return "", errPathRequired
	}
	return p, nil
}

func (s *Server) respondPathError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errPathRequired):
		respondJSON(w, http.StatusBadRequest, errorResponse("path is required"))
	case errors.Is(err, errInvalidPathEncoding):
		respondJSON(w, http.StatusBadRequest, errorResponse("invalid path encoding"))
	default:
		respondJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
	}
}

// routeParam reads the chi wildcard as a page route. An empty wildcard is
// the root route.
func routeParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "*")
	if strings.TrimSpace(raw) == "" {
		return "/", nil
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", errInvalidPathEncoding
	}
	return normalizeRoute(decoded), nil
}

func normalizeRoute(raw string) string {
	return path.Clean("/" + strings.Trim(strings.TrimSpace(raw), "/"))
}

func sanitizeFilename(p string) string {
	name := filepath.Base(p)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if strings.EqualFold(name, "page") || strings.EqualFold(name, "index") {
		if dir := filepath.Base(filepath.Dir(p)); dir != "." && dir != string(filepath.Separator) {
			name = dir
		}
	}
	name = strings.Map(func(r rune) rune {
		if r == ' ' {
			return '-'
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
	if name == "" {
		name = "export"
	}
	return name
}
