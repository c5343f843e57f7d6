package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersEveryMetric(t *testing.T) {
	r := New()
	require.NotNil(t, r)

	r.MessagesSent.WithLabelValues(TagBroadcastConfigForTest).Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(r.MessagesSent.WithLabelValues(TagBroadcastConfigForTest)))

	r.recordReceived("query")
	assert.Equal(t, float64(1), testutil.ToFloat64(r.MessagesReceived.WithLabelValues("query")))

	r.addSweepPairs(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(r.SweepPairsEmitted))

	r.recordRefinement("match")
	r.recordRefinement("match")
	r.recordRefinement("reject")
	assert.Equal(t, float64(2), testutil.ToFloat64(r.RefinementCalls.WithLabelValues("match")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.RefinementCalls.WithLabelValues("reject")))
}

// TagBroadcastConfigForTest avoids pulling in the fabric package just to
// name a tag string for this test.
const TagBroadcastConfigForTest = "broadcastConfig"

func TestNilRegistryWrapperFunctionsAreNoOps(t *testing.T) {
	Default = nil
	assert.NotPanics(t, func() {
		RecordMessageSent("query")
		RecordMessageReceived("query")
		AddSweepPairs(3)
		RecordRefinement("match")
	})
}

func TestInstallSetsDefault(t *testing.T) {
	r := New()
	Install(r)
	defer func() { Default = nil }()

	RecordMessageSent("query")
	assert.Equal(t, float64(1), testutil.ToFloat64(r.MessagesSent.WithLabelValues("query")))
}
