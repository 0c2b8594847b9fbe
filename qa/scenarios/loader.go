// Package scenarios loads YAML consolidation scenarios and replays them
// through the decision pipeline.
package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/consolidation/core/model"
)

// RequestDef is a parcel request. SLAInMinutes is relative to the
// scenario clock and is ignored when sla_deadline is set.
type RequestDef struct {
	model.DecisionRequest `yaml:",inline"`
	SLAInMinutes          float64 `yaml:"sla_in_minutes,omitempty"`
}

// ToModel resolves the deadline against now.
func (r RequestDef) ToModel(now time.Time) model.DecisionRequest {
	req := r.DecisionRequest
	if req.SLADeadline.IsZero() && r.SLAInMinutes > 0 {
		req.SLADeadline = now.Add(time.Duration(r.SLAInMinutes * float64(time.Minute)))
	}
	return req
}

// Expected is the outcome a scenario asserts. An empty VehicleID with
// NewDispatch false accepts any consolidation.
type Expected struct {
	VehicleID   string  `yaml:"vehicle_id,omitempty"`
	NewDispatch bool    `yaml:"new_dispatch"`
	MinScore    float64 `yaml:"min_score,omitempty"`
	MaxScore    float64 `yaml:"max_score,omitempty"`
}

type Scenario struct {
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description,omitempty"`
	Now         time.Time               `yaml:"now"`
	Shadow      bool                    `yaml:"shadow,omitempty"`
	Request     RequestDef              `yaml:"request"`
	Vehicles    []model.VehicleSnapshot `yaml:"vehicles"`
	Expected    *Expected               `yaml:"expected,omitempty"`
}

// Load reads a scenario file. A missing clock defaults to the current time.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	if sc.Now.IsZero() {
		sc.Now = time.Now().UTC()
	}
	return &sc, nil
}
