package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/consolidation/core/decision"
	"github.com/kilianp07/consolidation/core/model"
)

// Evaluator is the part of decision.Service a scenario needs.
type Evaluator interface {
	Evaluate(ctx context.Context, req model.DecisionRequest, vehicles []model.VehicleSnapshot, shadowMode bool) (decision.Response, error)
}

// Run evaluates the scenario and checks the expectation when present.
func Run(ctx context.Context, ev Evaluator, sc *Scenario) (decision.Response, error) {
	resp, err := ev.Evaluate(ctx, sc.Request.ToModel(sc.Now), sc.Vehicles, sc.Shadow)
	if err != nil {
		return resp, err
	}
	return resp, Check(sc, resp)
}

// Check compares a response with the scenario expectation.
func Check(sc *Scenario, resp decision.Response) error {
	exp := sc.Expected
	if exp == nil {
		return nil
	}
	rec := resp.Decision
	if rec.RequiresNewDispatch != exp.NewDispatch {
		return fmt.Errorf("scenario %s: new dispatch = %t, want %t", sc.Name, rec.RequiresNewDispatch, exp.NewDispatch)
	}
	if exp.VehicleID != "" && rec.VehicleID() != exp.VehicleID {
		return fmt.Errorf("scenario %s: vehicle = %q, want %q", sc.Name, rec.VehicleID(), exp.VehicleID)
	}
	if exp.MinScore > 0 && rec.Score < exp.MinScore {
		return fmt.Errorf("scenario %s: score %.2f below %.2f", sc.Name, rec.Score, exp.MinScore)
	}
	if exp.MaxScore > 0 && rec.Score > exp.MaxScore {
		return fmt.Errorf("scenario %s: score %.2f above %.2f", sc.Name, rec.Score, exp.MaxScore)
	}
	return nil
}

// Clock returns a fixed clock at the scenario time.
func Clock(sc *Scenario) func() time.Time {
	return func() time.Time { return sc.Now }
}
