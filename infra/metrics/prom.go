package metrics

import (
	"errors"
	"strconv"

	coremetrics "github.com/kilianp07/consolidation/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records decision, override and shadow activity in Prometheus.
type PromSink struct {
	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	overrides *prometheus.CounterVec
	shadow    *prometheus.CounterVec
	scoreDiff prometheus.Histogram
	events    *prometheus.CounterVec
}

// NewPromSink registers collectors on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers collectors on reg. A nil registerer
// defaults to the global one. Collectors already registered are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consolidation_decisions_total",
			Help: "Consolidation decisions by mode and outcome",
		}, []string{"mode", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consolidation_decision_duration_seconds",
			Help:    "Time spent producing a decision",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consolidation_override_transitions_total",
			Help: "Override lifecycle transitions",
		}, []string{"action", "risk_level"}),
		shadow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consolidation_shadow_outcomes_total",
			Help: "Shadow log outcomes and comparisons",
		}, []string{"outcome", "requires_review"}),
		scoreDiff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "consolidation_shadow_score_difference",
			Help:    "Absolute score difference between paired shadow and production decisions",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80},
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consolidation_bus_events_total",
			Help: "Lifecycle events observed on the event bus",
		}, []string{"topic", "action"}),
	}
	var err error
	if s.decisions, err = register(reg, s.decisions); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.overrides, err = register(reg, s.overrides); err != nil {
		return nil, err
	}
	if s.shadow, err = register(reg, s.shadow); err != nil {
		return nil, err
	}
	if s.scoreDiff, err = register(reg, s.scoreDiff); err != nil {
		return nil, err
	}
	if s.events, err = register(reg, s.events); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDecision counts the decision and observes its duration.
func (s *PromSink) RecordDecision(ev coremetrics.DecisionMetric) error {
	mode := "production"
	if ev.Shadow {
		mode = "shadow"
	}
	outcome := "consolidated"
	if ev.NewDispatch {
		outcome = "new_dispatch"
	}
	s.decisions.WithLabelValues(mode, outcome).Inc()
	s.duration.WithLabelValues(mode).Observe(ev.Duration.Seconds())
	return nil
}

// RecordOverride counts an override transition.
func (s *PromSink) RecordOverride(ev coremetrics.OverrideMetric) error {
	s.overrides.WithLabelValues(ev.Action, ev.RiskLevel.String()).Inc()
	return nil
}

// RecordShadow counts a shadow outcome. Comparisons also feed the score
// difference histogram.
func (s *PromSink) RecordShadow(ev coremetrics.ShadowMetric) error {
	s.shadow.WithLabelValues(ev.Outcome, strconv.FormatBool(ev.RequiresReview)).Inc()
	if ev.Outcome == coremetrics.OutcomeCompared {
		s.scoreDiff.Observe(ev.ScoreDifference)
	}
	return nil
}

// RecordEvent counts an event seen on the bus.
func (s *PromSink) RecordEvent(ev coremetrics.EventMetric) error {
	s.events.WithLabelValues(ev.Topic, ev.Action).Inc()
	return nil
}
