package infrastructure

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application's Prometheus instruments on a private
// registry so tests can construct isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	// ForecastRequests counts forecast requests by outcome
	// ("ok", "no_data", "insufficient_data", "upstream_error", "error").
	ForecastRequests *prometheus.CounterVec
	// ModelSearchDuration observes the wall time of one stepwise model
	// search, the dominant CPU cost per request.
	ModelSearchDuration prometheus.Histogram
	// UpstreamRequests counts calls to the statistics API by outcome.
	UpstreamRequests *prometheus.CounterVec
}

// NewMetrics creates and registers the application metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		ForecastRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "macrolink",
			Name:      "forecast_requests_total",
			Help:      "Forecast requests by outcome.",
		}, []string{"outcome"}),
		ModelSearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "macrolink",
			Name:      "model_search_duration_seconds",
			Help:      "Duration of one stepwise SARIMA order search.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "macrolink",
			Name:      "upstream_requests_total",
			Help:      "Statistics API calls by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(m.ForecastRequests, m.ModelSearchDuration, m.UpstreamRequests)
	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
