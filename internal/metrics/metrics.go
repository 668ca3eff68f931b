// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_events_published_total",
			Help: "Total number of domain events published, by outcome",
		},
		[]string{"topic", "outcome"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_events_consumed_total",
			Help: "Total number of domain events handled by consumers, by outcome",
		},
		[]string{"topic", "outcome"},
	)

	EventHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dispatch_event_handle_duration_seconds",
			Help: "Duration of event handler execution in seconds",
		},
		[]string{"topic"},
	)

	AIRecommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_ai_recommendations_total",
			Help: "Total number of AI recommendation attempts, by provider and terminal status",
		},
		[]string{"provider", "status"},
	)

	AIRecommendationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_ai_recommendation_latency_seconds",
			Help:    "AI provider call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)

	AssignmentConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_assignment_conflicts_total",
			Help: "Number of assignment transactions retried after a concurrent modification",
		},
	)

	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_realtime_subscribers",
			Help: "Number of connected realtime stream subscribers on this instance",
		},
	)
)
