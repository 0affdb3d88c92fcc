// Package metrics exposes the Prometheus collectors of the analyst service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_cache_lookups_total",
			Help: "Agent cache lookups by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	agentBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_agent_builds_total",
			Help: "Reasoning engines built, by build kind (fresh, rehydrated)",
		},
		[]string{"kind"},
	)

	durableErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_durable_errors_total",
			Help: "Durable cache tier failures by operation",
		},
		[]string{"op"},
	)

	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_analyses_total",
			Help: "Completed analyses by platform and status",
		},
		[]string{"platform", "status"},
	)

	analysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyst_analysis_duration_seconds",
			Help:    "Reasoning engine invocation time in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"platform"},
	)

	memoryDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_memory_documents_total",
			Help: "Documents written to the semantic memory by kind",
		},
		[]string{"kind"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)
)

// Cache tiers and outcomes.
const (
	TierMemory  = "memory"
	TierDurable = "durable"

	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// RecordCacheLookup counts one lookup against a cache tier.
func RecordCacheLookup(tier, outcome string) {
	cacheLookupsTotal.WithLabelValues(tier, outcome).Inc()
}

// RecordAgentBuild counts one engine construction.
func RecordAgentBuild(kind string) {
	agentBuildsTotal.WithLabelValues(kind).Inc()
}

// RecordDurableError counts a failed durable-tier operation.
func RecordDurableError(op string) {
	durableErrorsTotal.WithLabelValues(op).Inc()
}

// RecordAnalysis counts a finished analysis and observes its engine time.
func RecordAnalysis(platform, status string, duration time.Duration) {
	analysesTotal.WithLabelValues(platform, status).Inc()
	analysisDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordMemoryDocument counts a document written to the semantic memory.
func RecordMemoryDocument(kind string) {
	memoryDocumentsTotal.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(route string, status int) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
