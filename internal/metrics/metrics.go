// Package metrics exports Prometheus counters for workflow activity.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Workflow holds the counters updated by the workflow service.
type Workflow struct {
	created     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	refusals    *prometheus.CounterVec
	relays      prometheus.Counter
}

var workflowSingleton = sync.OnceValue(func() *Workflow {
	return &Workflow{
		created: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docflow",
			Name:      "requests_created_total",
			Help:      "Total number of requests created.",
		}, []string{"document_type"}),
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docflow",
			Name:      "workflow_transitions_total",
			Help:      "Total number of accepted workflow actions.",
		}, []string{"action", "role", "from", "to"}),
		refusals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docflow",
			Name:      "workflow_refusals_total",
			Help:      "Total number of refused workflow actions.",
		}, []string{"action", "role", "reason"}),
		relays: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "docflow",
			Name:      "validation_relays_total",
			Help:      "Total number of completed validation rounds relayed to the preparer.",
		}),
	}
})

// Default returns the process-wide workflow metrics.
func Default() *Workflow {
	return workflowSingleton()
}

func (w *Workflow) RequestCreated(documentType string) {
	w.created.WithLabelValues(documentType).Inc()
}

func (w *Workflow) Transition(action, role, from, to string) {
	w.transitions.WithLabelValues(action, role, from, to).Inc()
}

func (w *Workflow) Refused(action, role, reason string) {
	w.refusals.WithLabelValues(action, role, reason).Inc()
}

func (w *Workflow) Relayed() {
	w.relays.Inc()
}
