package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts dispatched widget events by name and outcome.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_events_total",
		Help: "Total number of dispatched widget events by name and outcome",
	}, []string{"event", "outcome"})

	// SubmissionsTotal counts persisted comment submissions.
	SubmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parlor_comment_submissions_total",
		Help: "Total number of persisted comment submissions",
	})

	// RateLimitedTotal counts submissions rejected by a rate-limit guard.
	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_rate_limited_total",
		Help: "Total number of submissions rejected by rate limiting",
	}, []string{"guard"})

	// SpamFlipsTotal counts background reclassifications that changed the
	// stored spam flag after the synchronous pre-check.
	SpamFlipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parlor_spam_reclassified_total",
		Help: "Total number of comments whose spam flag changed in background classification",
	})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})
)
