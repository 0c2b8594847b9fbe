package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	coremetrics "github.com/kilianp07/consolidation/core/metrics"
)

type recordSink struct {
	decisions, overrides, shadows, events int
	err                                   error
}

func (r *recordSink) RecordDecision(coremetrics.DecisionMetric) error {
	r.decisions++
	return r.err
}

func (r *recordSink) RecordOverride(coremetrics.OverrideMetric) error {
	r.overrides++
	return r.err
}

func (r *recordSink) RecordShadow(coremetrics.ShadowMetric) error {
	r.shadows++
	return r.err
}

func (r *recordSink) RecordEvent(coremetrics.EventMetric) error {
	r.events++
	return r.err
}

type decisionOnly struct{ n int }

func (d *decisionOnly) RecordDecision(coremetrics.DecisionMetric) error {
	d.n++
	return nil
}

func TestMultiSinkForwards(t *testing.T) {
	s1 := &recordSink{}
	s2 := &decisionOnly{}
	m := NewMultiSink(s1, s2)
	assert.NoError(t, m.RecordDecision(coremetrics.DecisionMetric{}))
	assert.NoError(t, m.RecordOverride(coremetrics.OverrideMetric{}))
	assert.NoError(t, m.RecordShadow(coremetrics.ShadowMetric{}))
	assert.NoError(t, m.RecordEvent(coremetrics.EventMetric{}))
	assert.Equal(t, 1, s1.decisions)
	assert.Equal(t, 1, s1.overrides)
	assert.Equal(t, 1, s1.shadows)
	assert.Equal(t, 1, s1.events)
	assert.Equal(t, 1, s2.n)
}

func TestMultiSinkAttemptsAllSinks(t *testing.T) {
	boom := errors.New("boom")
	failing := &recordSink{err: boom}
	ok := &recordSink{}
	err := NewMultiSink(failing, ok).RecordDecision(coremetrics.DecisionMetric{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.decisions)
}

func TestCombinerInstalled(t *testing.T) {
	s, err := coremetrics.NewMetricsSink(nil)
	assert.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, s)
	assert.NotNil(t, coremetrics.Combiner)
	_, isMulti := coremetrics.Combiner(&recordSink{}, &recordSink{}).(*MultiSink)
	assert.True(t, isMulti)
}

type closingSink struct {
	decisionOnly
	closed bool
}

func (c *closingSink) Close() { c.closed = true }

func TestMultiSinkClose(t *testing.T) {
	c := &closingSink{}
	NewMultiSink(&recordSink{}, c).Close()
	assert.True(t, c.closed)
}
