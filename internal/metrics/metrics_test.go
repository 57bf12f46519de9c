// ABOUTME: Tests for the HTTP instrumentation middleware and theme counters
// ABOUTME: Reads collector values back with prometheus testutil

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandlerLabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/themes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := InstrumentHandler(mux)

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/themes/{id}", "418"))

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/themes/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/themes/{id}", "418"))
	assert.Equal(t, 3.0, after-before)
}

func TestRecordCounters(t *testing.T) {
	before := testutil.ToFloat64(installs.WithLabelValues("custom", "error", "false"))
	RecordInstall(true, false, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(installs.WithLabelValues("custom", "error", "false"))-before)

	before = testutil.ToFloat64(publishes.WithLabelValues("catalog", "ok"))
	RecordPublish("catalog", nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(publishes.WithLabelValues("catalog", "ok"))-before)
}

func TestHandlerExposesRegistry(t *testing.T) {
	RecordEdit(nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "vitrine_themes_edits_total"))
}
