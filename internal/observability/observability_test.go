package observability_test

import (
	"PerpIndexer/internal/observability"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== Test: HealthChecker =====

func TestReadiness(t *testing.T) {
	h := observability.NewHealthChecker()

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetLastBlock("77")
	h.SetReady(true)
	assert.True(t, h.IsReady())

	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "77", body["last_block"])
}

func TestLiveness(t *testing.T) {
	h := observability.NewHealthChecker()
	rec := httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

// ===== Test: Metrics =====

func TestNewMetricsWith_IsolatedRegistries(t *testing.T) {
	a := observability.NewMetricsWith(prometheus.NewRegistry())
	b := observability.NewMetricsWith(prometheus.NewRegistry())

	a.BlocksSkipped.WithLabelValues("already_processed").Inc()
	assert.Equal(t, 1.0, promtest.ToFloat64(a.BlocksSkipped.WithLabelValues("already_processed")))
	assert.Equal(t, 0.0, promtest.ToFloat64(b.BlocksSkipped.WithLabelValues("already_processed")))
}

// ===== Test: ParseLogLevel =====

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		" WARN ":  zerolog.WarnLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, observability.ParseLogLevel(in), in)
	}
}
