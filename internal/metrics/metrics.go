// Package metrics holds Prometheus instruments that are used across the
// profile engine.  All collectors are registered with the global registry,
// so importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProfileCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_cache_hits_total",
			Help: "Profile cache reads served from the backend, by partition tag.",
		}, []string{"tag"})

	ProfileCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_cache_misses_total",
			Help: "Profile cache reads that required a rebuild, by partition tag.",
		}, []string{"tag"})

	CacheBackendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_cache_backend_errors_total",
			Help: "Cache backend failures degraded to a miss, by operation.",
		}, []string{"op"})

	PartitionsInvalidated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_partitions_invalidated_total",
			Help: "Cache partitions deleted by invalidation, by tag.",
		}, []string{"tag"})

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "profile_cache_memory_entries",
			Help: "Entries currently held by the in-memory cache backend.",
		})

	CacheSweepEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "profile_cache_sweep_evictions_total",
			Help: "Entries removed by the in-memory backend's periodic sweep.",
		})

	FieldWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canonical_field_writes_total",
			Help: "Derived fields written by the dual-write coordinator, by target column.",
		}, []string{"target"})

	ClaimMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_messages_total",
			Help: "Change-record batches handed to the claim sink, by outcome.",
		}, []string{"outcome"})

	GeoLookupFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geo_lookup_failures_total",
			Help: "Geocoding, climate, or airport lookups that left a field unset.",
		}, []string{"lookup"})
)

func init() {
	prometheus.MustRegister(
		ProfileCacheHits,
		ProfileCacheMisses,
		CacheBackendErrors,
		PartitionsInvalidated,
		CacheEntries,
		CacheSweepEvictions,
		FieldWrites,
		ClaimMessages,
		GeoLookupFailures,
	)
}
