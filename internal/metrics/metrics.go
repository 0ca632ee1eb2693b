// Package metrics provides prometheus collectors for Scout.
//
// Each Registry owns its own prometheus.Registry so tests and multiple
// composition roots never collide on global registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the application.
type Registry struct {
	// Scheduler metrics
	SchedulerInFlight *prometheus.GaugeVec
	SchedulerAttempts *prometheus.CounterVec
	SchedulerRequests *prometheus.CounterVec

	// Transform metrics
	TransformRuns    *prometheus.CounterVec
	TransformErrors  *prometheus.CounterVec
	TransformResults *prometheus.CounterVec

	// Graph metrics
	GraphNodes prometheus.Gauge
	GraphEdges prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a registry with every collector registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	factory := promauto.With(r.registry)

	r.SchedulerInFlight = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scout_scheduler_in_flight",
			Help: "Requests currently holding a scheduler slot",
		},
		[]string{"scheduler"},
	)
	r.SchedulerAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_scheduler_attempts_total",
			Help: "Individual attempts made by a scheduler, retries included",
		},
		[]string{"scheduler"},
	)
	r.SchedulerRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_scheduler_requests_total",
			Help: "Scheduled requests by final outcome",
		},
		[]string{"scheduler", "outcome"},
	)

	r.TransformRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_transform_runs_total",
			Help: "Transform runs started",
		},
		[]string{"transform"},
	)
	r.TransformErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_transform_errors_total",
			Help: "Errors reported by transform handlers",
		},
		[]string{"transform"},
	)
	r.TransformResults = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_transform_results_total",
			Help: "Result descriptors returned by transforms",
		},
		[]string{"transform"},
	)

	r.GraphNodes = factory.NewGauge(prometheus.GaugeOpts{
		Name: "scout_graph_nodes",
		Help: "Nodes in the graph",
	})
	r.GraphEdges = factory.NewGauge(prometheus.GaugeOpts{
		Name: "scout_graph_edges",
		Help: "Edges in the graph",
	})

	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the metrics in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
