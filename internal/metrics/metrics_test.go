package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("tokenize", 15*time.Millisecond)
	pr.IncStageResult("tokenize", ResultSuccess)
	pr.ObserveBuildDuration(500 * time.Millisecond)
	pr.IncBuildOutcome(BuildSuccess)
	pr.IncDocuments(3)
	pr.IncCacheHit()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(mfs))
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "docsite_stage_duration_seconds")
	assert.Contains(t, names, "docsite_documents_rendered_total")
}

func TestNilAndNoopRecorders(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveStageDuration("x", time.Second)
	pr.IncDocuments(1)

	r := OrNoop(nil)
	_, ok := r.(NoopRecorder)
	assert.True(t, ok)
	r.IncStageResult("x", ResultFatal)
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncDocuments(2)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "docsite_documents_rendered_total 2"))
}
