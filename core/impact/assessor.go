// Package impact estimates what an override would cost before anyone
// approves it.
package impact

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/consolidation/core/logger"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/route"
)

// Sub-score weights of the overall risk score.
const (
	weightSLA      = 0.4
	weightCapacity = 0.3
	weightRoute    = 0.2
	weightCost     = 0.1

	twoWheelerKmPerLiter  = 40.0
	fourWheelerKmPerLiter = 10.0
	twoWheelerCO2PerKm    = 0.06
	fourWheelerCO2PerKm   = 0.25

	rejectAbove       = 80.0
	reviewDeviationKm = 5.0
	routeScoreFullKm  = 10.0
	longDelayMinutes  = 30.0
	manyAffectedLimit = 3
)

// Config holds the monetary constants.
type Config struct {
	FuelPricePerLiter        float64 `json:"fuel_price_per_liter"`
	OperationalCostPerMinute float64 `json:"operational_cost_per_minute"`
}

// SetDefaults fills unset prices.
func (c *Config) SetDefaults() {
	if c.FuelPricePerLiter <= 0 {
		c.FuelPricePerLiter = 1.60
	}
	if c.OperationalCostPerMinute <= 0 {
		c.OperationalCostPerMinute = 0.5
	}
}

var penaltyPerParcel = map[model.SLATier]float64{
	model.SLATierLow:      0,
	model.SLATierMedium:   10,
	model.SLATierHigh:     25,
	model.SLATierCritical: 50,
}

var tierScore = map[model.SLATier]float64{
	model.SLATierLow:      10,
	model.SLATierMedium:   40,
	model.SLATierHigh:     70,
	model.SLATierCritical: 100,
}

// DecisionReader provides the ranked alternatives of the original decision.
type DecisionReader interface {
	Get(ctx context.Context, id string) (model.DecisionRecord, error)
}

// Assessor computes OverrideImpactAssessments.
type Assessor struct {
	cfg       Config
	estimator route.Estimator
	decisions DecisionReader
	log       logger.Logger
	now       func() time.Time
}

// NewAssessor returns an assessor. decisions may be nil, in which case no
// alternative vehicles are suggested.
func NewAssessor(cfg Config, decisions DecisionReader, log logger.Logger) *Assessor {
	cfg.SetDefaults()
	return &Assessor{
		cfg:       cfg,
		estimator: route.NewEstimator(),
		decisions: decisions,
		log:       logger.OrNop(log),
		now:       time.Now,
	}
}

// Assess evaluates the SLA, capacity, route and cost consequences of
// moving req onto vehicle as requested by o.
func (a *Assessor) Assess(ctx context.Context, o model.OverrideRequest, req model.DecisionRequest, vehicle model.VehicleSnapshot, affected []model.AffectedParcel) (model.OverrideImpactAssessment, error) {
	if err := req.Validate(); err != nil {
		return model.OverrideImpactAssessment{}, fmt.Errorf("decision request: %w", err)
	}
	if err := vehicle.Validate(); err != nil {
		return model.OverrideImpactAssessment{}, fmt.Errorf("vehicle: %w", err)
	}

	sla := assessSLA(affected, o.BypassesSLA)
	capImpact := a.assessCapacity(ctx, o, req, vehicle)
	rt := a.assessRoute(req, vehicle)
	cost := model.CostImpact{
		FuelCost:        rt.FuelCostDelta,
		SLAPenalties:    float64(len(sla.AffectedParcelIDs)) * penaltyPerParcel[sla.RiskTier],
		OperationalCost: round2(rt.ExtraTimeMinutes * a.cfg.OperationalCostPerMinute),
	}
	cost.Total = round2(cost.FuelCost + cost.SLAPenalties + cost.OperationalCost)

	out := model.OverrideImpactAssessment{
		SLA:        sla,
		Capacity:   capImpact,
		Route:      rt,
		Cost:       cost,
		AssessedAt: a.now(),
	}
	out.RiskScore = RiskScore(out)
	out.Recommendations = recommendations(out)
	return out, nil
}

func assessSLA(affected []model.AffectedParcel, bypass bool) model.SLAImpact {
	var (
		ids            []string
		maxDelay       float64
		worstViolation float64
	)
	for _, p := range affected {
		delay := math.Max(0, p.NewETA.Sub(p.OriginalETA).Minutes())
		if delay > 0 {
			ids = append(ids, p.ParcelID)
		}
		maxDelay = math.Max(maxDelay, delay)
		if !p.SLADeadline.IsZero() {
			worstViolation = math.Max(worstViolation, p.NewETA.Sub(p.SLADeadline).Minutes())
		}
	}
	tier := TierForViolation(worstViolation)
	if bypass && tier == model.SLATierLow {
		tier = model.SLATierMedium
	}
	return model.SLAImpact{
		AffectedParcelIDs:     ids,
		RiskTier:              tier,
		EstimatedDelayMinutes: round2(maxDelay),
		WorstViolationMinutes: round2(worstViolation),
		Mitigations:           mitigations(tier, maxDelay, len(ids)),
	}
}

// TierForViolation grades the worst SLA overrun in minutes.
func TierForViolation(minutes float64) model.SLATier {
	switch {
	case minutes > 60:
		return model.SLATierCritical
	case minutes > 30:
		return model.SLATierHigh
	case minutes > 15:
		return model.SLATierMedium
	default:
		return model.SLATierLow
	}
}

func mitigations(tier model.SLATier, maxDelay float64, affected int) []string {
	var out []string
	switch tier {
	case model.SLATierCritical:
		out = append(out, "Escalate to the operations lead before executing the override.")
		fallthrough
	case model.SLATierHigh:
		out = append(out, "Notify affected customers of the revised delivery time.")
	case model.SLATierMedium:
		out = append(out, "Monitor the route and re-sequence stops if delays grow.")
	}
	if maxDelay > longDelayMinutes {
		out = append(out, fmt.Sprintf("Offer a rescheduled delivery window; worst delay is %.0f minutes.", maxDelay))
	}
	if affected > manyAffectedLimit {
		out = append(out, fmt.Sprintf("%d parcels are delayed; consider moving some stops to another vehicle.", affected))
	}
	return out
}

func (a *Assessor) assessCapacity(ctx context.Context, o model.OverrideRequest, req model.DecisionRequest, v model.VehicleSnapshot) model.CapacityImpact {
	projected := model.UtilizationAfter(v.Capacity, req.WeightKg, req.Dimensions.VolumeM3())
	out := model.CapacityImpact{
		CurrentUtilization:   round2(model.Utilization(v.Capacity)),
		ProjectedUtilization: round2(projected),
		ExceedsCapacity:      projected > 100,
	}
	if a.decisions == nil || o.DecisionID == "" {
		return out
	}
	d, err := a.decisions.Get(ctx, o.DecisionID)
	if err != nil {
		a.log.Warnf("impact: load decision %s: %v", o.DecisionID, err)
		return out
	}
	for _, alt := range d.Explanation.Alternatives {
		if alt.Eligible && alt.VehicleID != v.ID {
			out.AlternativeVehicles = append(out.AlternativeVehicles, alt.VehicleID)
		}
	}
	if rec := d.VehicleID(); rec != "" && rec != v.ID {
		out.AlternativeVehicles = append([]string{rec}, out.AlternativeVehicles...)
	}
	return out
}

func (a *Assessor) assessRoute(req model.DecisionRequest, v model.VehicleSnapshot) model.RouteImpact {
	est := a.estimator.Estimate(v.StopLocations(), req.Pickup, req.Delivery, a.now())
	kmPerLiter, co2PerKm := fourWheelerKmPerLiter, fourWheelerCO2PerKm
	if v.Type == model.VehicleTwoWheeler {
		kmPerLiter, co2PerKm = twoWheelerKmPerLiter, twoWheelerCO2PerKm
	}
	return model.RouteImpact{
		ExtraDistanceKm:  round2(est.DeviationKm),
		ExtraTimeMinutes: round2(a.estimator.DurationMinutes(est.DeviationKm)),
		FuelCostDelta:    round2(est.DeviationKm / kmPerLiter * a.cfg.FuelPricePerLiter),
		EmissionsDeltaKg: round2(est.DeviationKm * co2PerKm),
	}
}

// RiskScore combines the four sub-assessments into a 0-100 score.
func RiskScore(a model.OverrideImpactAssessment) float64 {
	capScore := math.Min(100, a.Capacity.ProjectedUtilization)
	if a.Capacity.ExceedsCapacity {
		capScore = 100
	}
	routeScore := math.Min(100, a.Route.ExtraDistanceKm/routeScoreFullKm*100)
	costScore := math.Min(100, a.Cost.Total)
	return round2(weightSLA*tierScore[a.SLA.RiskTier] +
		weightCapacity*capScore +
		weightRoute*routeScore +
		weightCost*costScore)
}

func recommendations(a model.OverrideImpactAssessment) []string {
	var out []string
	if a.RiskScore > rejectAbove {
		out = append(out, fmt.Sprintf("Risk score %.1f exceeds %.0f; reject the override.", a.RiskScore, rejectAbove))
	}
	if a.Capacity.ExceedsCapacity {
		msg := "Projected load exceeds vehicle capacity; assign an alternate vehicle."
		if len(a.Capacity.AlternativeVehicles) > 0 {
			msg = fmt.Sprintf("Projected load exceeds vehicle capacity; consider %s instead.", a.Capacity.AlternativeVehicles[0])
		}
		out = append(out, msg)
	}
	if a.SLA.RiskTier == model.SLATierHigh || a.SLA.RiskTier == model.SLATierCritical {
		out = append(out, "Contact affected customers proactively about the delay.")
	}
	if a.Route.ExtraDistanceKm > reviewDeviationKm {
		out = append(out, fmt.Sprintf("Route grows by %.1f km; review the stop sequence.", a.Route.ExtraDistanceKm))
	}
	if len(out) == 0 {
		out = append(out, "Impact is within acceptable limits.")
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
