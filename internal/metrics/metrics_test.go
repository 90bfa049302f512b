package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestCounters(t *testing.T) {
	w := Default()

	transitions := w.transitions.WithLabelValues("claim", "validator", "pending", "in_validation")
	before := testutil.ToFloat64(transitions)
	w.Transition("claim", "validator", "pending", "in_validation")
	assert.Equal(t, before+1, testutil.ToFloat64(transitions))

	refusals := w.refusals.WithLabelValues("approve", "approver", "illegal_transition")
	before = testutil.ToFloat64(refusals)
	w.Refused("approve", "approver", "illegal_transition")
	assert.Equal(t, before+1, testutil.ToFloat64(refusals))

	before = testutil.ToFloat64(w.relays)
	w.Relayed()
	assert.Equal(t, before+1, testutil.ToFloat64(w.relays))

	created := w.created.WithLabelValues("manual")
	before = testutil.ToFloat64(created)
	w.RequestCreated("manual")
	assert.Equal(t, before+1, testutil.ToFloat64(created))
}

func TestRegisteredNamesAndLabels(t *testing.T) {
	w := Default()
	w.RequestCreated("policy")
	w.Transition("approve", "approver", "in_approval", "approved")
	w.Refused("claim", "preparer", "illegal_transition")
	w.Relayed()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	labels := make(map[string][]string)
	for _, mf := range families {
		if len(mf.GetMetric()) == 0 {
			continue
		}
		var names []string
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			names = append(names, lp.GetName())
		}
		labels[mf.GetName()] = names
	}

	assert.ElementsMatch(t, []string{"document_type"}, labels["docflow_requests_created_total"])
	assert.ElementsMatch(t, []string{"action", "role", "from", "to"}, labels["docflow_workflow_transitions_total"])
	assert.ElementsMatch(t, []string{"action", "role", "reason"}, labels["docflow_workflow_refusals_total"])
	assert.Contains(t, labels, "docflow_validation_relays_total")
}
