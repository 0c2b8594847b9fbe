package constraint

import (
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/route"
)

// Constraint names shared by the hard and soft result sets.
const (
	NameCapacity       = "capacity"
	NameSLAMargin      = "sla_margin"
	NameRouteDeviation = "route_deviation"
)

// Config holds the hard and soft thresholds.
type Config struct {
	HardCapacityPercent  float64 `json:"hard_capacity_percent"`
	SoftCapacityPercent  float64 `json:"soft_capacity_percent"`
	HardSLABufferMinutes float64 `json:"hard_sla_buffer_minutes"`
	SoftSLABufferMinutes float64 `json:"soft_sla_buffer_minutes"`
	HardMaxDeviationKm   float64 `json:"hard_max_deviation_km"`
	SoftMaxDeviationKm   float64 `json:"soft_max_deviation_km"`
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		HardCapacityPercent:  95,
		SoftCapacityPercent:  90,
		HardSLABufferMinutes: 30,
		SoftSLABufferMinutes: 60,
		HardMaxDeviationKm:   10,
		SoftMaxDeviationKm:   5,
	}
}

// SetDefaults fills zero thresholds with the standard limits.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.HardCapacityPercent == 0 {
		c.HardCapacityPercent = d.HardCapacityPercent
	}
	if c.SoftCapacityPercent == 0 {
		c.SoftCapacityPercent = d.SoftCapacityPercent
	}
	if c.HardSLABufferMinutes == 0 {
		c.HardSLABufferMinutes = d.HardSLABufferMinutes
	}
	if c.SoftSLABufferMinutes == 0 {
		c.SoftSLABufferMinutes = d.SoftSLABufferMinutes
	}
	if c.HardMaxDeviationKm == 0 {
		c.HardMaxDeviationKm = d.HardMaxDeviationKm
	}
	if c.SoftMaxDeviationKm == 0 {
		c.SoftMaxDeviationKm = d.SoftMaxDeviationKm
	}
}

// Validate checks the soft limits are not looser than the hard ones.
func (c Config) Validate() error {
	if c.SoftCapacityPercent > c.HardCapacityPercent {
		return fmt.Errorf("soft capacity %.1f exceeds hard capacity %.1f", c.SoftCapacityPercent, c.HardCapacityPercent)
	}
	if c.SoftMaxDeviationKm > c.HardMaxDeviationKm {
		return fmt.Errorf("soft deviation %.1f exceeds hard deviation %.1f", c.SoftMaxDeviationKm, c.HardMaxDeviationKm)
	}
	if c.SoftSLABufferMinutes < c.HardSLABufferMinutes {
		return fmt.Errorf("soft sla buffer %.0f below hard sla buffer %.0f", c.SoftSLABufferMinutes, c.HardSLABufferMinutes)
	}
	return nil
}

// Evaluator checks a vehicle/request pair against capacity, SLA and route limits.
type Evaluator struct {
	cfg Config
}

// NewEvaluator returns an evaluator; zero thresholds take the defaults.
func NewEvaluator(cfg Config) Evaluator {
	cfg.SetDefaults()
	return Evaluator{cfg: cfg}
}

// Config returns the thresholds in use.
func (e Evaluator) Config() Config { return e.cfg }

// EvaluateHard returns the three disqualifying results.
func (e Evaluator) EvaluateHard(v model.VehicleSnapshot, req model.DecisionRequest, est route.Estimate) []model.ConstraintResult {
	return e.evaluate(model.ConstraintHard, v, req, est,
		e.cfg.HardCapacityPercent, e.cfg.HardSLABufferMinutes, e.cfg.HardMaxDeviationKm)
}

// EvaluateSoft returns the three preference results.
func (e Evaluator) EvaluateSoft(v model.VehicleSnapshot, req model.DecisionRequest, est route.Estimate) []model.ConstraintResult {
	return e.evaluate(model.ConstraintSoft, v, req, est,
		e.cfg.SoftCapacityPercent, e.cfg.SoftSLABufferMinutes, e.cfg.SoftMaxDeviationKm)
}

func (e Evaluator) evaluate(kind model.ConstraintKind, v model.VehicleSnapshot, req model.DecisionRequest, est route.Estimate, capLimit, bufferMin, devLimit float64) []model.ConstraintResult {
	util := model.UtilizationAfter(v.Capacity, req.WeightKg, req.Dimensions.VolumeM3())
	requiredBy := req.SLADeadline.Add(-time.Duration(bufferMin * float64(time.Minute)))
	margin := requiredBy.Sub(est.EstimatedDelivery).Minutes()

	label := "maximum"
	if kind == model.ConstraintSoft {
		label = "optimal"
	}
	return []model.ConstraintResult{
		{
			Name:        NameCapacity,
			Kind:        kind,
			Satisfied:   util <= capLimit,
			Value:       util,
			Threshold:   capLimit,
			Description: fmt.Sprintf("utilization after assignment %.1f%% (%s %.0f%%)", util, label, capLimit),
		},
		{
			Name:        NameSLAMargin,
			Kind:        kind,
			Satisfied:   !est.EstimatedDelivery.After(requiredBy),
			Value:       margin,
			Threshold:   bufferMin,
			Description: fmt.Sprintf("%.0f min margin against SLA minus %.0f min buffer", margin, bufferMin),
		},
		{
			Name:        NameRouteDeviation,
			Kind:        kind,
			Satisfied:   est.DeviationKm <= devLimit,
			Value:       est.DeviationKm,
			Threshold:   devLimit,
			Description: fmt.Sprintf("route deviation %.2f km (%s %.0f km)", est.DeviationKm, label, devLimit),
		},
	}
}

// HardSatisfied is the logical AND over the hard results.
func HardSatisfied(results []model.ConstraintResult) bool {
	for _, r := range results {
		if r.Kind == model.ConstraintHard && !r.Satisfied {
			return false
		}
	}
	return true
}

// Violations returns the names of unsatisfied results.
func Violations(results []model.ConstraintResult) []string {
	var out []string
	for _, r := range results {
		if !r.Satisfied {
			out = append(out, r.Name)
		}
	}
	return out
}

// Risks converts a result set into SLA, capacity and route risk in [0,1].
func Risks(results []model.ConstraintResult) (sla, capacity, routeRisk float64) {
	for _, r := range results {
		switch r.Name {
		case NameSLAMargin:
			sla = slaRisk(r)
		case NameCapacity:
			capacity = ratioRisk(r)
		case NameRouteDeviation:
			routeRisk = ratioRisk(r)
		}
	}
	return sla, capacity, routeRisk
}

func slaRisk(r model.ConstraintResult) float64 {
	if !r.Satisfied {
		return 1
	}
	if r.Threshold == 0 {
		return 0
	}
	return math.Max(0, 1-r.Value/r.Threshold)
}

func ratioRisk(r model.ConstraintResult) float64 {
	if r.Threshold == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, r.Value/r.Threshold))
}
