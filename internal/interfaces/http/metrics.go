package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/domain/market"
)

// MetricsRegistry holds all Prometheus metrics for CryptoLens
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Backtest metrics
	BacktestDuration *prometheus.HistogramVec
	BacktestRuns     *prometheus.CounterVec

	// Request metrics
	RequestDuration *prometheus.HistogramVec
	Requests        *prometheus.CounterVec
}

// NewMetricsRegistry creates a registry with process, Go runtime and
// CryptoLens metrics registered
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		BacktestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptolens_backtest_duration_seconds",
				Help:    "Duration of one strategy backtest in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"strategy"},
		),

		BacktestRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptolens_backtests_total",
				Help: "Total number of backtests by strategy and result",
			},
			[]string{"strategy", "result"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptolens_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptolens_http_requests_total",
				Help: "Total HTTP requests by route and status code",
			},
			[]string{"route", "method", "code"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BacktestDuration,
		m.BacktestRuns,
		m.RequestDuration,
		m.Requests,
	)
	return m
}

// ObserveBacktest records one engine run
func (m *MetricsRegistry) ObserveBacktest(strategy string, d time.Duration, err error) {
	m.BacktestDuration.WithLabelValues(strategy).Observe(d.Seconds())
	m.BacktestRuns.WithLabelValues(strategy, resultLabel(err)).Inc()
}

var _ backtest.Observer = (*MetricsRegistry)(nil)

// RecordRequest records one served request
func (m *MetricsRegistry) RecordRequest(route, method, code string, d time.Duration) {
	m.RequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
	m.Requests.WithLabelValues(route, method, code).Inc()
}

// BacktestCount returns the running total for one strategy and result
func (m *MetricsRegistry) BacktestCount(strategy, result string) float64 {
	metric := &io_prometheus_client.Metric{}
	if err := m.BacktestRuns.WithLabelValues(strategy, result).Write(metric); err != nil {
		log.Warn().Err(err).Msg("Failed to read backtest counter")
		return 0
	}
	return metric.GetCounter().GetValue()
}

// MetricsHandler serves the registry in the Prometheus exposition format
func (m *MetricsRegistry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry
func (m *MetricsRegistry) Registry() *prometheus.Registry {
	return m.registry
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, market.ErrNotFound):
		return "not_found"
	case errors.Is(err, market.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, backtest.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
