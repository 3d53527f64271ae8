// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total number of recommendation requests served",
		},
		[]string{"outcome"}, // blended | cached | fallback
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "recommendation_duration_seconds",
			Help: "Duration of recommendation blending in seconds",
		},
		[]string{"outcome"},
	)

	ScorerCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scorer_candidates",
			Help:    "Number of candidates produced per scorer invocation",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		},
		[]string{"scorer"}, // content-based | collaborative
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache operations by tier and result",
		},
		[]string{"tier", "result"}, // tier: distributed|local, result: hit|miss|set|error
	)

	ExplanationsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explanations_generated_total",
			Help: "Explanations produced by source",
		},
		[]string{"source"}, // cache | generator | fallback
	)
)
