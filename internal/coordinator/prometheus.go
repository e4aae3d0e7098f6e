package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// CollectedMetrics is the per-run metrics snapshot pulled from the
// time-series store for the measurement window.
type CollectedMetrics struct {
	CompletedTransfers uint64
	RejectedTransfers  uint64
	FailedTransfers    uint64
	LatencyP50Us       uint64
	LatencyP95Us       uint64
	LatencyP99Us       uint64
	LatencyP999Us      uint64
}

// MetricsSource collects aggregated metrics for a run's measurement window,
// named only at its interface per spec.md §1 ("percentage aggregation from
// an external time-series store" is external glue, not core behavior).
type MetricsSource interface {
	CollectMetrics(ctx context.Context, start, end time.Time) (CollectedMetrics, error)
}

// instantResponse mirrors the subset of Prometheus's /api/v1/query response
// shape this client reads.
type instantResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Value [2]any `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// PrometheusSource queries a Prometheus HTTP API for the counters and
// histogram the client emits, matching the metric names and query shapes
// of the counterpart query client this package is ported from: per-phase
// counters via increase() and per-quantile latency via
// histogram_quantile(rate(..._bucket)).
type PrometheusSource struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewPrometheusSource builds a source against baseURL (e.g.
// "http://localhost:9090"), trimming any trailing slash.
func NewPrometheusSource(baseURL string, logger *slog.Logger) *PrometheusSource {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}

	return &PrometheusSource{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

const (
	metricCompleted = "ledgerbench_transfers_completed_total"
	metricRejected  = "ledgerbench_transfers_rejected_total"
	metricFailed    = "ledgerbench_transfers_failed_total"
	metricLatency   = "ledgerbench_transfer_latency_us"
)

// CollectMetrics queries every counter and latency quantile over the
// [start, end] window, with a 5s buffer added to the range to absorb OTel
// collector and Prometheus scrape timing.
func (p *PrometheusSource) CollectMetrics(ctx context.Context, start, end time.Time) (CollectedMetrics, error) {
	queryTime := end
	rangeSecs := end.Sub(start).Seconds() + 5.0
	rangeExpr := fmt.Sprintf("%ds", int64(rangeSecs+0.5))

	var metrics CollectedMetrics

	if v, ok, err := p.queryCounter(ctx, metricCompleted, rangeExpr, queryTime); err != nil {
		return CollectedMetrics{}, err
	} else if ok {
		metrics.CompletedTransfers = v
	}

	if v, ok, err := p.queryCounter(ctx, metricRejected, rangeExpr, queryTime); err != nil {
		return CollectedMetrics{}, err
	} else if ok {
		metrics.RejectedTransfers = v
	}

	if v, ok, err := p.queryCounter(ctx, metricFailed, rangeExpr, queryTime); err != nil {
		return CollectedMetrics{}, err
	} else if ok {
		metrics.FailedTransfers = v
	}

	quantiles := []struct {
		q   float64
		dst *uint64
	}{
		{0.50, &metrics.LatencyP50Us},
		{0.95, &metrics.LatencyP95Us},
		{0.99, &metrics.LatencyP99Us},
		{0.999, &metrics.LatencyP999Us},
	}

	for _, qq := range quantiles {
		v, ok, err := p.queryHistogramQuantile(ctx, metricLatency, qq.q, rangeExpr, queryTime)
		if err != nil {
			return CollectedMetrics{}, err
		}

		if ok {
			*qq.dst = v
		}
	}

	p.logger.Info("collected metrics",
		slog.Uint64("completed", metrics.CompletedTransfers),
		slog.Uint64("rejected", metrics.RejectedTransfers),
		slog.Uint64("failed", metrics.FailedTransfers),
	)

	return metrics, nil
}

func (p *PrometheusSource) queryCounter(ctx context.Context, metric, rangeExpr string, at time.Time) (uint64, bool, error) {
	query := fmt.Sprintf(`sum(increase(%s{phase="measurement"}[%s]))`, metric, rangeExpr)

	v, ok, err := p.queryAt(ctx, query, at)
	if err != nil || !ok {
		return 0, false, err
	}

	if v < 0 {
		v = 0
	}

	return uint64(v + 0.5), true, nil
}

func (p *PrometheusSource) queryHistogramQuantile(ctx context.Context, metric string, quantile float64, rangeExpr string, at time.Time) (uint64, bool, error) {
	query := fmt.Sprintf(`histogram_quantile(%s, sum(rate(%s_bucket{phase="measurement"}[%s])) by (le))`, strconv.FormatFloat(quantile, 'f', -1, 64), metric, rangeExpr)

	v, ok, err := p.queryAt(ctx, query, at)
	if err != nil || !ok || v < 0 {
		return 0, false, err
	}

	return uint64(v), true, nil
}

// queryAt issues an instant query against /api/v1/query at the given time
// and returns the first result's scalar value.
func (p *PrometheusSource) queryAt(ctx context.Context, query string, at time.Time) (float64, bool, error) {
	reqURL := p.baseURL + "/api/v1/query?" + url.Values{
		"query": {query},
		"time":  {strconv.FormatFloat(float64(at.Unix()), 'f', -1, 64)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("coordinator: build prometheus request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("coordinator: query prometheus: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("prometheus query failed", slog.Int("status", resp.StatusCode), slog.String("query", query))

		return 0, false, nil
	}

	var parsed instantResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, false, fmt.Errorf("coordinator: decode prometheus response: %w", err)
	}

	if parsed.Status != "success" || len(parsed.Data.Result) == 0 {
		return 0, false, nil
	}

	// Prometheus encodes the sample as [unixSeconds float64, valueString string].
	valueStr, ok := parsed.Data.Result[0].Value[1].(string)
	if !ok {
		return 0, false, nil
	}

	v, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		p.logger.Warn("failed to parse prometheus value", slog.String("value", valueStr))

		return 0, false, nil
	}

	return v, true, nil
}
