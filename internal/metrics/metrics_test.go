package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.ObserveSelection(OutcomeSuccess, 20*time.Millisecond)
	m.ObserveSelection(OutcomeSuccess, 10*time.Millisecond)
	m.ObserveSelection(OutcomeNoSuitable, time.Millisecond)
	m.IncFilterEmpty("audio")
	m.IncPolicyRejection()
	m.IncPolicyUnavailable()
	m.IncFeedbackRecord()
	m.ObserveFeedbackPublish(nil)
	m.ObserveFeedbackPublish(errors.New("broker down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.selections.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.selections.WithLabelValues(OutcomeNoSuitable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filterEmpty.WithLabelValues("audio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.policyRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.policyUnavailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedbackRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedbackPublishes.WithLabelValues("error")))

	count, err := testutil.GatherAndCount(reg, "resource_selector_selection_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMustNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.IncPolicyRejection()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.policyRejections))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSelection(OutcomeError, time.Second)
		m.IncFilterEmpty("code")
		m.IncPolicyRejection()
		m.IncPolicyUnavailable()
		m.IncFeedbackRecord()
		m.ObserveFeedbackPublish(nil)
	})
}
