// Package metrics exposes Prometheus instrumentation for the invocation
// core. Labels stay low-cardinality: tool and action names are bounded by
// the catalog, outcomes by the error taxonomy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by the execution engine.
type Metrics struct {
	Invocations *prometheus.CounterVec
	Latency     *prometheus.HistogramVec
	Refreshes   *prometheus.CounterVec
}

// New registers the collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actions",
			Name:      "invocations_total",
			Help:      "Action invocations by tool, action, and outcome.",
		}, []string{"tool", "action", "outcome"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "actions",
			Name:      "invocation_duration_seconds",
			Help:      "End-to-end invocation latency, including the provider call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool", "action"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actions",
			Name:      "credential_refreshes_total",
			Help:      "Credential refresh attempts by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}
	reg.MustRegister(m.Invocations, m.Latency, m.Refreshes)
	return m
}
