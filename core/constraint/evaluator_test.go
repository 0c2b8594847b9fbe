package constraint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/route"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func fixture(currentKg, deviationKm float64, delivery time.Duration) (model.VehicleSnapshot, model.DecisionRequest, route.Estimate) {
	v := model.VehicleSnapshot{ID: "v1", Capacity: model.Capacity{MaxWeightKg: 100, CurrentWeightKg: currentKg}}
	req := model.DecisionRequest{ParcelID: "p1", WeightKg: 5, SLADeadline: now.Add(4 * time.Hour)}
	est := route.Estimate{DeviationKm: deviationKm, EstimatedDelivery: now.Add(delivery)}
	return v, req, est
}

func byName(rs []model.ConstraintResult, name string) model.ConstraintResult {
	for _, r := range rs {
		if r.Name == name {
			return r
		}
	}
	return model.ConstraintResult{}
}

func TestEvaluateHard_AllSatisfied(t *testing.T) {
	v, req, est := fixture(40, 1, time.Hour)
	hard := NewEvaluator(Config{}).EvaluateHard(v, req, est)
	require.Len(t, hard, 3)
	assert.True(t, HardSatisfied(hard))

	sla := byName(hard, NameSLAMargin)
	assert.InDelta(t, 150, sla.Value, 1e-9)
	assert.Equal(t, 30.0, sla.Threshold)
	assert.InDelta(t, 45, byName(hard, NameCapacity).Value, 1e-9)
}

func TestEvaluate_CapacityBoundaries(t *testing.T) {
	ev := NewEvaluator(Config{})
	v, req, est := fixture(88, 1, time.Hour) // 93% after loading
	assert.True(t, byName(ev.EvaluateHard(v, req, est), NameCapacity).Satisfied)
	assert.False(t, byName(ev.EvaluateSoft(v, req, est), NameCapacity).Satisfied)

	v.Capacity.CurrentWeightKg = 91 // 96%
	assert.False(t, HardSatisfied(ev.EvaluateHard(v, req, est)))
}

func TestEvaluate_SLAMarginNegative(t *testing.T) {
	v, req, est := fixture(10, 1, 3*time.Hour+45*time.Minute)
	hard := NewEvaluator(Config{}).EvaluateHard(v, req, est)
	sla := byName(hard, NameSLAMargin)
	assert.False(t, sla.Satisfied)
	assert.InDelta(t, -15, sla.Value, 1e-9)
	assert.Equal(t, []string{NameSLAMargin}, Violations(hard))
}

func TestEvaluate_DeviationSoftOnly(t *testing.T) {
	v, req, est := fixture(10, 7, time.Hour)
	ev := NewEvaluator(Config{})
	assert.True(t, HardSatisfied(ev.EvaluateHard(v, req, est)))
	assert.False(t, byName(ev.EvaluateSoft(v, req, est), NameRouteDeviation).Satisfied)
}

func TestRisks(t *testing.T) {
	v, req, est := fixture(40, 5, 3*time.Hour+20*time.Minute)
	sla, capRisk, routeRisk := Risks(NewEvaluator(Config{}).EvaluateHard(v, req, est))
	// margin 10 min against a 30 min buffer
	assert.InDelta(t, 1-10.0/30.0, sla, 1e-9)
	assert.InDelta(t, 45.0/95.0, capRisk, 1e-9)
	assert.InDelta(t, 0.5, routeRisk, 1e-9)

	v, req, est = fixture(40, 25, 5*time.Hour)
	sla, _, routeRisk = Risks(NewEvaluator(Config{}).EvaluateHard(v, req, est))
	assert.Equal(t, 1.0, sla)
	assert.Equal(t, 1.0, routeRisk)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	cfg.SoftCapacityPercent = 99
	assert.Error(t, cfg.Validate())
}
