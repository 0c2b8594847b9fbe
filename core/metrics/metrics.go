package metrics

import (
	"time"

	"github.com/kilianp07/consolidation/core/factory"
	"github.com/kilianp07/consolidation/core/model"
)

// Config lists the sinks to build.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}

// DecisionMetric describes one evaluation.
type DecisionMetric struct {
	DecisionID  string
	ParcelID    string
	VehicleID   string
	Score       float64
	Candidates  int
	Eligible    int
	NewDispatch bool
	Shadow      bool
	Duration    time.Duration
	Time        time.Time
}

// MetricsSink records decision outcomes.
type MetricsSink interface {
	RecordDecision(ev DecisionMetric) error
}

// OverrideMetric describes an override lifecycle transition.
type OverrideMetric struct {
	OverrideID string
	Action     string
	Status     model.OverrideStatus
	RiskLevel  model.RiskLevel
	Time       time.Time
}

// OverrideRecorder records override transitions.
type OverrideRecorder interface {
	RecordOverride(ev OverrideMetric) error
}

// ShadowMetric describes a shadow/production comparison or a shadow queue
// outcome.
type ShadowMetric struct {
	ParcelID        string
	Outcome         string
	ScoreDifference float64
	VehicleMismatch bool
	RequiresReview  bool
	Time            time.Time
}

// OutcomeCompared marks a ShadowMetric produced by a shadow/production
// comparison.
const OutcomeCompared = "compared"

// ShadowRecorder records shadow mode activity.
type ShadowRecorder interface {
	RecordShadow(ev ShadowMetric) error
}

// EventMetric counts a lifecycle event seen on the event bus.
type EventMetric struct {
	Topic  string
	Action string
	Time   time.Time
}

// EventRecorder records bus events.
type EventRecorder interface {
	RecordEvent(ev EventMetric) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDecision(DecisionMetric) error { return nil }
func (NopSink) RecordOverride(OverrideMetric) error { return nil }
func (NopSink) RecordShadow(ShadowMetric) error     { return nil }
func (NopSink) RecordEvent(EventMetric) error       { return nil }

// RecordOverride forwards ev when sink supports override metrics.
func RecordOverride(sink MetricsSink, ev OverrideMetric) error {
	if r, ok := sink.(OverrideRecorder); ok {
		return r.RecordOverride(ev)
	}
	return nil
}

// RecordEvent forwards ev when sink supports bus event metrics.
func RecordEvent(sink MetricsSink, ev EventMetric) error {
	if r, ok := sink.(EventRecorder); ok {
		return r.RecordEvent(ev)
	}
	return nil
}

// RecordShadow forwards ev when sink supports shadow metrics.
func RecordShadow(sink MetricsSink, ev ShadowMetric) error {
	if r, ok := sink.(ShadowRecorder); ok {
		return r.RecordShadow(ev)
	}
	return nil
}
