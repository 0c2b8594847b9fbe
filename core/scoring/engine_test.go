package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/consolidation/core/constraint"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/route"
)

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func request() model.DecisionRequest {
	return model.DecisionRequest{
		ParcelID:    "p1",
		WeightKg:    5,
		Dimensions:  model.Dimensions{LengthCm: 50, WidthCm: 40, HeightCm: 50},
		SLADeadline: now.Add(4 * time.Hour),
	}
}

func candidate(v model.VehicleSnapshot, req model.DecisionRequest, est route.Estimate) Candidate {
	ev := constraint.NewEvaluator(constraint.Config{})
	return Candidate{Vehicle: v, Estimate: est, Hard: ev.EvaluateHard(v, req, est), Soft: ev.EvaluateSoft(v, req, est)}
}

func TestScore_WeightsSumToOne(t *testing.T) {
	v := model.VehicleSnapshot{ID: "v", Capacity: model.Capacity{MaxWeightKg: 100}, EligibilityScore: 0.5}
	_, factors := NewEngine(0).Score(v, request(), route.Estimate{EstimatedDelivery: now})
	require.Len(t, factors, 4)
	assert.Equal(t, 1.00, WeightSum(factors))
}

func TestScore_NearOptimal(t *testing.T) {
	req := request()
	v := model.VehicleSnapshot{
		ID: "v1",
		Capacity: model.Capacity{
			MaxWeightKg: 100, CurrentWeightKg: 40,
			MaxVolumeM3: 1, CurrentVolumeM3: 0.7,
		},
		EligibilityScore: 0.9,
	}
	est := route.Estimate{DeviationKm: 1, EstimatedDelivery: now.Add(time.Hour)}
	score, _ := NewEngine(0).Score(v, req, est)
	assert.Greater(t, score, 80.0)
}

func TestScore_PoorFit(t *testing.T) {
	req := request()
	v := model.VehicleSnapshot{
		ID:               "v2",
		Capacity:         model.Capacity{MaxWeightKg: 100, CurrentWeightKg: 90},
		EligibilityScore: 0.3,
	}
	est := route.Estimate{DeviationKm: 15, EstimatedDelivery: now.Add(time.Hour)}
	score, _ := NewEngine(0).Score(v, req, est)
	assert.Less(t, score, 50.0)
}

func TestScore_LateDeliveryHasNoBuffer(t *testing.T) {
	v := model.VehicleSnapshot{ID: "v", Capacity: model.Capacity{MaxWeightKg: 100}}
	_, factors := NewEngine(0).Score(v, request(), route.Estimate{EstimatedDelivery: now.Add(5 * time.Hour)})
	assert.Equal(t, 0.0, factors[2].Score)
}

func TestRank_IneligibleScoresZero(t *testing.T) {
	req := request()
	good := model.VehicleSnapshot{ID: "b", Capacity: model.Capacity{MaxWeightKg: 100, CurrentWeightKg: 70}, EligibilityScore: 0.8}
	full := model.VehicleSnapshot{ID: "a", Capacity: model.Capacity{MaxWeightKg: 100, CurrentWeightKg: 98}, EligibilityScore: 1}
	est := route.Estimate{DeviationKm: 1, EstimatedDelivery: now.Add(time.Hour)}

	eng := NewEngine(0)
	ranked := eng.Rank(req, []Candidate{candidate(full, req, est), candidate(good, req, est)})
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].Vehicle.ID)
	assert.Equal(t, 0.0, ranked[1].Score)
	assert.False(t, ranked[1].Eligible())
	assert.False(t, eng.ShouldRecommendNewDispatch(ranked))
}

func TestShouldRecommendNewDispatch(t *testing.T) {
	eng := NewEngine(0)
	assert.True(t, eng.ShouldRecommendNewDispatch(nil))
	assert.True(t, eng.ShouldRecommendNewDispatch([]Ranked{{Score: 49.99}}))
	assert.False(t, eng.ShouldRecommendNewDispatch([]Ranked{{Score: 50}}))
}
