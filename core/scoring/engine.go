package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/kilianp07/consolidation/core/constraint"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/route"
)

// Factor names and their fixed weights.
const (
	FactorRouteEfficiency = "route_efficiency"
	FactorCapacity        = "capacity_utilization"
	FactorTimeBuffer      = "delivery_time_buffer"
	FactorEligibility     = "vehicle_eligibility"

	WeightRouteEfficiency = 0.30
	WeightCapacity        = 0.25
	WeightTimeBuffer      = 0.25
	WeightEligibility     = 0.20

	// DefaultMinAcceptableScore is the score below which a new dispatch is advised.
	DefaultMinAcceptableScore = 50.0

	routeZeroKm     = 20.0
	optimalUtil     = 0.80
	fullBufferHours = 4.0
	capacityPenalty = 200.0
)

// Candidate is one vehicle after route estimation and constraint checks.
type Candidate struct {
	Vehicle  model.VehicleSnapshot
	Estimate route.Estimate
	Hard     []model.ConstraintResult
	Soft     []model.ConstraintResult
}

// Eligible reports whether every hard constraint holds.
func (c Candidate) Eligible() bool { return constraint.HardSatisfied(c.Hard) }

// Ranked is a scored candidate.
type Ranked struct {
	Candidate
	Score   float64
	Factors []model.ScoringFactor
}

// Engine scores and ranks candidates.
type Engine struct {
	MinAcceptableScore float64
}

// NewEngine returns an engine with the given acceptance threshold; a
// non-positive value selects DefaultMinAcceptableScore.
func NewEngine(minScore float64) Engine {
	if minScore <= 0 {
		minScore = DefaultMinAcceptableScore
	}
	return Engine{MinAcceptableScore: minScore}
}

// Score computes the weighted 0-100 suitability of a vehicle for a request.
func (Engine) Score(v model.VehicleSnapshot, req model.DecisionRequest, est route.Estimate) (float64, []model.ScoringFactor) {
	routeScore := math.Max(0, 100-est.DeviationKm/routeZeroKm*100)

	util := model.UtilizationAfter(v.Capacity, req.WeightKg, req.Dimensions.VolumeM3()) / 100
	capScore := math.Max(0, 100-capacityPenalty*math.Abs(util-optimalUtil))

	bufferHours := req.SLADeadline.Sub(est.EstimatedDelivery).Hours()
	bufferScore := 0.0
	if bufferHours >= 0 {
		bufferScore = math.Min(100, bufferHours/fullBufferHours*100)
	}

	eligScore := v.EligibilityScore * 100

	factors := []model.ScoringFactor{
		{Name: FactorRouteEfficiency, Weight: WeightRouteEfficiency, Score: routeScore,
			Description: fmt.Sprintf("%.2f km deviation", est.DeviationKm)},
		{Name: FactorCapacity, Weight: WeightCapacity, Score: capScore,
			Description: fmt.Sprintf("%.1f%% utilization after assignment", util*100)},
		{Name: FactorTimeBuffer, Weight: WeightTimeBuffer, Score: bufferScore,
			Description: fmt.Sprintf("%.2f h before SLA deadline", bufferHours)},
		{Name: FactorEligibility, Weight: WeightEligibility, Score: eligScore,
			Description: fmt.Sprintf("eligibility %.2f", v.EligibilityScore)},
	}
	total := 0.0
	for _, f := range factors {
		total += f.Weight * f.Score
	}
	return Round2(total), factors
}

// Rank scores every candidate, forcing ineligible ones to zero, and sorts
// by descending score. Equal scores are ordered by vehicle id.
func (e Engine) Rank(req model.DecisionRequest, cands []Candidate) []Ranked {
	out := make([]Ranked, 0, len(cands))
	for _, c := range cands {
		score, factors := e.Score(c.Vehicle, req, c.Estimate)
		if !c.Eligible() {
			score = 0
		}
		out = append(out, Ranked{Candidate: c, Score: score, Factors: factors})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Vehicle.ID < out[j].Vehicle.ID
	})
	return out
}

// ShouldRecommendNewDispatch is true for an empty ranking or when the top
// score is below the acceptance threshold.
func (e Engine) ShouldRecommendNewDispatch(ranked []Ranked) bool {
	if len(ranked) == 0 {
		return true
	}
	return ranked[0].Score < e.MinAcceptableScore
}

// WeightSum returns the sum of factor weights.
func WeightSum(factors []model.ScoringFactor) float64 {
	s := 0.0
	for _, f := range factors {
		s += f.Weight
	}
	return Round2(s)
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
