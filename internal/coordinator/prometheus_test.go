package coordinator

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewPrometheusSource_TrimsTrailingSlash(t *testing.T) {
	s := NewPrometheusSource("http://localhost:9090/", testLogger())
	assert.Equal(t, "http://localhost:9090", s.baseURL)
}

func TestCollectMetrics_ParsesCountersAndQuantiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		query := req.URL.Query().Get("query")

		var value string

		switch {
		case strings.Contains(query,"ledgerbench_transfers_completed_total"):
			value = "1234"
		case strings.Contains(query,"ledgerbench_transfers_rejected_total"):
			value = "12"
		case strings.Contains(query,"ledgerbench_transfers_failed_total"):
			value = "3"
		case strings.Contains(query,"0.5,"):
			value = "500"
		case strings.Contains(query,"0.95,"):
			value = "950"
		case strings.Contains(query,"0.99,"):
			value = "990"
		case strings.Contains(query,"0.999,"):
			value = "999"
		default:
			value = "0"
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"result":[{"value":[1690000000,"` + value + `"]}]}}`))
	}))
	defer server.Close()

	source := NewPrometheusSource(server.URL, testLogger())

	start := time.Now().Add(-30 * time.Second)
	end := time.Now()

	metrics, err := source.CollectMetrics(context.Background(), start, end)
	require.NoError(t, err)

	assert.Equal(t, uint64(1234), metrics.CompletedTransfers)
	assert.Equal(t, uint64(12), metrics.RejectedTransfers)
	assert.Equal(t, uint64(3), metrics.FailedTransfers)
	assert.Equal(t, uint64(500), metrics.LatencyP50Us)
	assert.Equal(t, uint64(999), metrics.LatencyP999Us)
}

func TestCollectMetrics_EmptyResultLeavesZeroValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"result":[]}}`))
	}))
	defer server.Close()

	source := NewPrometheusSource(server.URL, testLogger())

	metrics, err := source.CollectMetrics(context.Background(), time.Now().Add(-time.Minute), time.Now())
	require.NoError(t, err)
	assert.Equal(t, CollectedMetrics{}, metrics)
}
