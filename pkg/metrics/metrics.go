package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "HTTP response size in bytes",
		Buckets: prometheus.ExponentialBuckets(100, 10, 5),
	}, []string{"method", "path"})

	// stores
	StoreQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_query_duration_seconds",
		Help:    "Store operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	// fleet
	DronesRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_drones_registered_total",
		Help: "Total number of drone registrations",
	})

	LoadOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_load_outcomes_total",
		Help: "Load attempts by outcome code",
	}, []string{"code"})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_state_transitions_total",
		Help: "Drone state changes by target state",
	}, []string{"state"})

	DronesByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_drones",
		Help: "Number of drones per state, refreshed by the fleet reporter",
	}, []string{"state"})

	// events
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Drone events handed to the publisher, by type and result",
	}, []string{"type", "result"})
)

// ObserveStore records the duration of a store operation started at start.
// Use it deferred: defer metrics.ObserveStore("sqlite", "find_drone", time.Now())
func ObserveStore(backend, operation string, start time.Time) {
	StoreQueryDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}
