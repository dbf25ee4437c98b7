// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheHits counts cache hits by domain prefix.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickerhub_cache_hits_total",
		Help: "Cache hits by key domain.",
	}, []string{"domain"})

	// CacheMisses counts cache misses by domain prefix.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickerhub_cache_misses_total",
		Help: "Cache misses by key domain.",
	}, []string{"domain"})

	// UpstreamRequests counts outbound calls by provider and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickerhub_upstream_requests_total",
		Help: "Outbound upstream calls by provider and outcome (ok, error, rejected).",
	}, []string{"provider", "outcome"})

	// BreakerState tracks breaker state per provider
	// (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tickerhub_breaker_state",
		Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open).",
	}, []string{"provider"})

	// LLMRequests counts LLM calls by outcome (ok, error, rate_limited, cached).
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickerhub_llm_requests_total",
		Help: "LLM upstream calls by outcome.",
	}, []string{"outcome"})

	// ClientRejections counts inbound requests rejected by the per-IP limiter.
	ClientRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickerhub_client_rate_limited_total",
		Help: "Inbound requests rejected with 429.",
	})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBreaker records a breaker state sample for provider.
func ObserveBreaker(provider, state string) {
	var v float64
	switch state {
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	}
	BreakerState.WithLabelValues(provider).Set(v)
}
