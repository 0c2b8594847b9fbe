package explain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/consolidation/core/constraint"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/route"
	"github.com/kilianp07/consolidation/core/scoring"
)

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func rank(t *testing.T, req model.DecisionRequest, vehicles ...model.VehicleSnapshot) []scoring.Ranked {
	t.Helper()
	ev := constraint.NewEvaluator(constraint.Config{})
	est := route.Estimate{DeviationKm: 1, EstimatedDelivery: now.Add(time.Hour)}
	var cands []scoring.Candidate
	for _, v := range vehicles {
		cands = append(cands, scoring.Candidate{Vehicle: v, Estimate: est,
			Hard: ev.EvaluateHard(v, req, est), Soft: ev.EvaluateSoft(v, req, est)})
	}
	return scoring.NewEngine(0).Rank(req, cands)
}

func req() model.DecisionRequest {
	return model.DecisionRequest{ParcelID: "p1", WeightKg: 5, SLADeadline: now.Add(4 * time.Hour)}
}

func vehicle(id string, load, elig float64) model.VehicleSnapshot {
	return model.VehicleSnapshot{ID: id, Capacity: model.Capacity{MaxWeightKg: 100, CurrentWeightKg: load}, EligibilityScore: elig}
}

func TestBuild_Success(t *testing.T) {
	r := req()
	ranked := rank(t, r, vehicle("a", 70, 0.9), vehicle("b", 50, 0.5), vehicle("c", 98, 1))
	exp := NewBuilder(0).Build(Input{Request: r, Ranked: ranked, Selected: &ranked[0]})

	assert.Equal(t, "a", exp.VehicleID)
	assert.Len(t, exp.HardConstraints, 3)
	assert.Len(t, exp.Factors, 4)
	require.Len(t, exp.Alternatives, 2)
	assert.Equal(t, "b", exp.Alternatives[0].VehicleID)
	assert.False(t, exp.Alternatives[1].Eligible)
	assert.Contains(t, exp.Reasoning, "Vehicle a selected")
	assert.Contains(t, exp.Reasoning, "low risk")
	assert.Less(t, exp.Risk.SLARisk, 0.3)
}

func TestBuild_NoCandidatesUsesBaseline(t *testing.T) {
	exp := NewBuilder(0).Build(Input{Request: req(), RequiresNewDispatch: true})
	assert.Equal(t, BaselineSLARisk, exp.Risk.SLARisk)
	assert.Equal(t, BaselineCapacityRisk, exp.Risk.CapacityRisk)
	assert.Equal(t, BaselineRouteRisk, exp.Risk.RouteRisk)
	assert.Contains(t, exp.Reasoning, "0 vehicles evaluated, 0 eligible")
}

func TestBuild_HardViolationEscalatesSLARisk(t *testing.T) {
	r := req()
	ranked := rank(t, r, vehicle("full", 99, 1), vehicle("fuller", 97, 1))
	exp := NewBuilder(0).Build(Input{Request: r, Ranked: ranked, RequiresNewDispatch: true})
	assert.GreaterOrEqual(t, exp.Risk.SLARisk, 0.8)
	assert.Equal(t, 1.0, exp.Risk.CapacityRisk)
	assert.Contains(t, exp.Reasoning, "capacity 2")
	assert.Contains(t, exp.Reasoning, "fails capacity")
}

func TestBuild_LowScoreShortfall(t *testing.T) {
	r := req()
	ranked := rank(t, r, vehicle("weak", 0, 0))
	require.True(t, ranked[0].Eligible())
	exp := NewBuilder(90).Build(Input{Request: r, Ranked: ranked, RequiresNewDispatch: true})
	assert.Contains(t, exp.Reasoning, "below the 90.00 threshold")
	assert.GreaterOrEqual(t, exp.Risk.RouteRisk, BaselineRouteRisk)
}

func TestRiskTier(t *testing.T) {
	assert.Equal(t, "high", RiskTier(0.5))
	assert.Equal(t, "medium", RiskTier(1.5))
	assert.Equal(t, "low", RiskTier(3))
}
