package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "resource_selector"

// Selection outcomes used as the "outcome" label.
const (
	OutcomeSuccess        = "success"
	OutcomeInvalid        = "invalid_request"
	OutcomePolicyRejected = "policy_rejected"
	OutcomeNoSuitable     = "no_suitable_resource"
	OutcomeError          = "error"
)

// Metrics exposes the Prometheus collectors for selection and feedback
// activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	selections        *prometheus.CounterVec
	selectionDuration prometheus.Histogram
	filterEmpty       *prometheus.CounterVec
	policyRejections  prometheus.Counter
	policyUnavailable prometheus.Counter
	feedbackRecords   prometheus.Counter
	feedbackPublishes *prometheus.CounterVec
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same name. Any other registration error
// panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		selections: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Selection calls by outcome.",
		}, []string{"outcome"})),
		selectionDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selection_duration_seconds",
			Help:      "Time spent serving a single selection, including the policy check.",
			Buckets:   prometheus.DefBuckets,
		})),
		filterEmpty: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_empty_total",
			Help:      "Selections where no catalog resource passed the constraint filter.",
		}, []string{"category"})),
		policyRejections: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_rejections_total",
			Help:      "Selections rejected by the policy validator.",
		})),
		policyUnavailable: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_unavailable_total",
			Help:      "Policy checks that failed to reach the validator.",
		})),
		feedbackRecords: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_records_total",
			Help:      "Feedback records appended to the feedback log.",
		})),
		feedbackPublishes: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_publish_total",
			Help:      "Feedback records forwarded downstream, by result.",
		}, []string{"result"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) ObserveSelection(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(outcome).Inc()
	m.selectionDuration.Observe(d.Seconds())
}

func (m *Metrics) IncFilterEmpty(category string) {
	if m == nil {
		return
	}
	m.filterEmpty.WithLabelValues(category).Inc()
}

func (m *Metrics) IncPolicyRejection() {
	if m == nil {
		return
	}
	m.policyRejections.Inc()
}

func (m *Metrics) IncPolicyUnavailable() {
	if m == nil {
		return
	}
	m.policyUnavailable.Inc()
}

func (m *Metrics) IncFeedbackRecord() {
	if m == nil {
		return
	}
	m.feedbackRecords.Inc()
}

// ObserveFeedbackPublish records a downstream publish attempt.
func (m *Metrics) ObserveFeedbackPublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.feedbackPublishes.WithLabelValues(result).Inc()
}
