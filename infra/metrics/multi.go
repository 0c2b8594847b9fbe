package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/consolidation/core/metrics"
)

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDecision forwards to every sink. Every sink is attempted; errors
// are joined.
func (m *MultiSink) RecordDecision(ev coremetrics.DecisionMetric) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordDecision(ev))
	}
	return errors.Join(errs...)
}

// RecordOverride forwards to sinks supporting override metrics.
func (m *MultiSink) RecordOverride(ev coremetrics.OverrideMetric) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, coremetrics.RecordOverride(s, ev))
	}
	return errors.Join(errs...)
}

// RecordShadow forwards to sinks supporting shadow metrics.
func (m *MultiSink) RecordShadow(ev coremetrics.ShadowMetric) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, coremetrics.RecordShadow(s, ev))
	}
	return errors.Join(errs...)
}

// RecordEvent forwards to sinks supporting bus event metrics.
func (m *MultiSink) RecordEvent(ev coremetrics.EventMetric) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, coremetrics.RecordEvent(s, ev))
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds a connection.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
