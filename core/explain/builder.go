package explain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kilianp07/consolidation/core/constraint"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/scoring"
)

// Baseline risk applied when no existing vehicle is acceptable.
const (
	BaselineSLARisk      = 0.3
	BaselineCapacityRisk = 0.2
	BaselineRouteRisk    = 0.2

	hardViolationSLARisk = 0.8
	maxAlternatives      = 3
)

// Input is the orchestrator's selection handed to the builder.
type Input struct {
	Request             model.DecisionRequest
	Ranked              []scoring.Ranked
	Selected            *scoring.Ranked
	RequiresNewDispatch bool
}

// Builder produces the explanation attached to every decision.
type Builder struct {
	MinAcceptableScore float64
}

// NewBuilder returns a builder that quotes shortfalls against minScore.
func NewBuilder(minScore float64) Builder {
	if minScore <= 0 {
		minScore = scoring.DefaultMinAcceptableScore
	}
	return Builder{MinAcceptableScore: minScore}
}

// Build assembles constraints, factors, risk and narrative for the input.
func (b Builder) Build(in Input) model.Explanation {
	best := in.Selected
	if best == nil && len(in.Ranked) > 0 {
		best = &in.Ranked[0]
	}

	var exp model.Explanation
	if best != nil {
		exp.VehicleID = best.Vehicle.ID
		exp.HardConstraints = best.Hard
		exp.SoftConstraints = best.Soft
		exp.Factors = best.Factors
	}
	exp.Risk = b.risk(best, in.RequiresNewDispatch)
	exp.Alternatives = alternatives(in.Ranked, in.Selected)

	if in.RequiresNewDispatch || in.Selected == nil {
		exp.Reasoning = b.newDispatchNarrative(in, best)
	} else {
		exp.Reasoning = successNarrative(in.Request, *in.Selected, exp.Alternatives)
	}
	return exp
}

func (b Builder) risk(best *scoring.Ranked, newDispatch bool) model.RiskAssessment {
	if best == nil {
		return model.NewRiskAssessment(BaselineSLARisk, BaselineCapacityRisk, BaselineRouteRisk,
			[]string{"no candidate vehicle available"})
	}
	sla, capRisk, routeRisk := constraint.Risks(best.Hard)
	factors := constraint.Violations(best.Hard)
	for _, name := range constraint.Violations(best.Soft) {
		factors = append(factors, "soft:"+name)
	}
	if newDispatch {
		sla = math.Max(sla, BaselineSLARisk)
		capRisk = math.Max(capRisk, BaselineCapacityRisk)
		routeRisk = math.Max(routeRisk, BaselineRouteRisk)
	}
	if !best.Eligible() {
		sla = math.Max(sla, hardViolationSLARisk)
	}
	return model.NewRiskAssessment(sla, capRisk, routeRisk, factors)
}

func alternatives(ranked []scoring.Ranked, selected *scoring.Ranked) []model.Alternative {
	var out []model.Alternative
	for _, r := range ranked {
		if selected != nil && r.Vehicle.ID == selected.Vehicle.ID {
			continue
		}
		out = append(out, model.Alternative{VehicleID: r.Vehicle.ID, Score: r.Score, Eligible: r.Eligible()})
		if len(out) == maxAlternatives {
			break
		}
	}
	return out
}

// RiskTier labels an SLA buffer expressed in hours.
func RiskTier(bufferHours float64) string {
	switch {
	case bufferHours < 1:
		return "high"
	case bufferHours < 2:
		return "medium"
	default:
		return "low"
	}
}

func successNarrative(req model.DecisionRequest, sel scoring.Ranked, alts []model.Alternative) string {
	vol := req.Dimensions.VolumeM3()
	before := model.Utilization(sel.Vehicle.Capacity)
	after := model.UtilizationAfter(sel.Vehicle.Capacity, req.WeightKg, vol)
	buffer := req.SLADeadline.Sub(sel.Estimate.EstimatedDelivery).Hours()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Vehicle %s selected for parcel %s with score %.2f. ", sel.Vehicle.ID, req.ParcelID, sel.Score)
	fmt.Fprintf(&sb, "Route deviation %.2f km, estimated delivery %s. ",
		sel.Estimate.DeviationKm, sel.Estimate.EstimatedDelivery.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Capacity %.1f%% before, %.1f%% after. ", before, after)
	fmt.Fprintf(&sb, "SLA buffer %.1f h (%s risk).", buffer, RiskTier(buffer))
	if len(alts) > 0 {
		parts := make([]string, 0, len(alts))
		for _, a := range alts {
			parts = append(parts, fmt.Sprintf("%s (%.2f)", a.VehicleID, a.Score))
		}
		fmt.Fprintf(&sb, " Alternatives: %s.", strings.Join(parts, ", "))
	}
	return sb.String()
}

func (b Builder) newDispatchNarrative(in Input, best *scoring.Ranked) string {
	eligible := 0
	failures := map[string]int{}
	for _, r := range in.Ranked {
		if r.Eligible() {
			eligible++
		}
		for _, name := range constraint.Violations(r.Hard) {
			failures[name]++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "New dispatch recommended for parcel %s: %d vehicles evaluated, %d eligible.",
		in.Request.ParcelID, len(in.Ranked), eligible)
	if len(failures) > 0 {
		fmt.Fprintf(&sb, " Hard constraint failures: %s.", failureBreakdown(failures))
	}
	switch {
	case best == nil:
		sb.WriteString(" No candidate vehicles were available.")
	case !best.Eligible():
		fmt.Fprintf(&sb, " Best alternative %s fails %s.",
			best.Vehicle.ID, strings.Join(constraint.Violations(best.Hard), ", "))
	default:
		fmt.Fprintf(&sb, " Best alternative %s scored %.2f, %.2f below the %.2f threshold.",
			best.Vehicle.ID, best.Score, scoring.Round2(b.MinAcceptableScore-best.Score), b.MinAcceptableScore)
	}
	return sb.String()
}

// failureBreakdown lists constraint names by descending failure count.
func failureBreakdown(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s %d", n, counts[n]))
	}
	return strings.Join(parts, ", ")
}
