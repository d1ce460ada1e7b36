// Package metrics exposes Prometheus instrumentation for the
// orchestration core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProviderFetches counts provider fetch outcomes by source and status.
	ProviderFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terramind_provider_fetches_total",
		Help: "Provider fetch outcomes by source and status.",
	}, []string{"source", "status"})

	// LateProviderResults counts results that arrived after the shared
	// deadline and were therefore discarded.
	LateProviderResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terramind_provider_late_results_total",
		Help: "Provider results that arrived too late to be used.",
	}, []string{"source"})

	// QueryDuration tracks end-to-end orchestration latency.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "terramind_query_duration_seconds",
		Help:    "End-to-end orchestration latency by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// DashboardSubscribers tracks connected dashboard clients.
	DashboardSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "terramind_dashboard_subscribers",
		Help: "Currently connected dashboard subscribers.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
