// Package metrics provides Prometheus metrics for rate lookups and notification runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Rate cache
	RateCacheHitsTotal   prometheus.Counter
	RateCacheMissesTotal prometheus.Counter
	RateCacheEntries     prometheus.Gauge

	// Rate providers
	ProviderRequestsTotal *prometheus.CounterVec
	ProviderFailuresTotal *prometheus.CounterVec

	// Degraded conversions
	StaleRatesServedTotal    prometheus.Counter
	IdentityFallbacksTotal   prometheus.Counter
	AggregationExcludedTotal prometheus.Counter

	// Notifications
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with registerer
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RateCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwatch_rate_cache_hits_total",
			Help: "Rate lookups served from a fresh cache entry",
		}),
		RateCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwatch_rate_cache_misses_total",
			Help: "Rate lookups that required a provider refresh",
		}),
		RateCacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subwatch_rate_cache_entries",
			Help: "Number of currency pairs held in the rate cache",
		}),
		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwatch_rate_provider_requests_total",
				Help: "Requests issued to rate providers",
			},
			[]string{"provider"},
		),
		ProviderFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwatch_rate_provider_failures_total",
				Help: "Rate provider requests that failed or returned incomplete data",
			},
			[]string{"provider"},
		),
		StaleRatesServedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwatch_stale_rates_served_total",
			Help: "Expired cached rates served because every provider failed",
		}),
		IdentityFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwatch_identity_rate_fallbacks_total",
			Help: "Conversions that fell back to an identity rate of 1.0",
		}),
		AggregationExcludedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwatch_aggregation_excluded_total",
			Help: "Subscriptions excluded from aggregation because of invalid input",
		}),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwatch_notifications_total",
				Help: "Notification decisions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}

	registerer.MustRegister(
		m.RateCacheHitsTotal,
		m.RateCacheMissesTotal,
		m.RateCacheEntries,
		m.ProviderRequestsTotal,
		m.ProviderFailuresTotal,
		m.StaleRatesServedTotal,
		m.IdentityFallbacksTotal,
		m.AggregationExcludedTotal,
		m.NotificationsTotal,
	)

	return m
}

// CacheHit records a fresh cache hit
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.RateCacheHitsTotal.Inc()
}

// CacheMiss records a lookup that needed a refresh
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.RateCacheMissesTotal.Inc()
}

// CacheSize sets the current number of cached pairs
func (m *Metrics) CacheSize(n int) {
	if m == nil {
		return
	}
	m.RateCacheEntries.Set(float64(n))
}

// ProviderRequest records a request to provider
func (m *Metrics) ProviderRequest(provider string) {
	if m == nil {
		return
	}
	m.ProviderRequestsTotal.WithLabelValues(provider).Inc()
}

// ProviderFailure records a failed request to provider
func (m *Metrics) ProviderFailure(provider string) {
	if m == nil {
		return
	}
	m.ProviderFailuresTotal.WithLabelValues(provider).Inc()
}

// StaleServed records use of an expired cached rate
func (m *Metrics) StaleServed() {
	if m == nil {
		return
	}
	m.StaleRatesServedTotal.Inc()
}

// IdentityFallback records use of the identity rate
func (m *Metrics) IdentityFallback() {
	if m == nil {
		return
	}
	m.IdentityFallbacksTotal.Inc()
}

// Excluded records a subscription dropped from aggregation
func (m *Metrics) Excluded() {
	if m == nil {
		return
	}
	m.AggregationExcludedTotal.Inc()
}

// Notification records a notification outcome ("sent", "skipped", "failed")
func (m *Metrics) Notification(kind, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}
