package model

import "time"

// ConstraintKind separates disqualifying limits from preferences.
type ConstraintKind string

const (
	ConstraintHard ConstraintKind = "HARD"
	ConstraintSoft ConstraintKind = "SOFT"
)

// ConstraintResult is the outcome of one constraint check for a vehicle.
type ConstraintResult struct {
	Name        string         `json:"name"`
	Kind        ConstraintKind `json:"kind"`
	Satisfied   bool           `json:"satisfied"`
	Value       float64        `json:"value"`
	Threshold   float64        `json:"threshold"`
	Description string         `json:"description"`
}

// ScoringFactor is one weighted component of a suitability score.
type ScoringFactor struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// RiskAssessment summarises the risk of a decision on three axes in [0,1].
type RiskAssessment struct {
	SLARisk      float64  `json:"sla_risk"`
	CapacityRisk float64  `json:"capacity_risk"`
	RouteRisk    float64  `json:"route_risk"`
	OverallRisk  float64  `json:"overall_risk"`
	Factors      []string `json:"factors,omitempty"`
}

// NewRiskAssessment builds an assessment whose overall risk is the mean of
// the three axes.
func NewRiskAssessment(sla, capacity, route float64, factors []string) RiskAssessment {
	return RiskAssessment{
		SLARisk:      sla,
		CapacityRisk: capacity,
		RouteRisk:    route,
		OverallRisk:  (sla + capacity + route) / 3,
		Factors:      factors,
	}
}

// Alternative is a ranked vehicle that was not selected.
type Alternative struct {
	VehicleID string  `json:"vehicle_id"`
	Score     float64 `json:"score"`
	Eligible  bool    `json:"eligible"`
}

// Explanation carries the rationale attached to a decision.
type Explanation struct {
	VehicleID       string             `json:"vehicle_id,omitempty"`
	HardConstraints []ConstraintResult `json:"hard_constraints"`
	SoftConstraints []ConstraintResult `json:"soft_constraints"`
	Factors         []ScoringFactor    `json:"factors"`
	Risk            RiskAssessment     `json:"risk"`
	Reasoning       string             `json:"reasoning"`
	Alternatives    []Alternative      `json:"alternatives,omitempty"`
}

// DecisionRecord is the persisted outcome of one evaluation call. Only the
// executed and overridden fields change after creation.
type DecisionRecord struct {
	ID                   string      `json:"id"`
	ParcelID             string      `json:"parcel_id"`
	RequestedAt          time.Time   `json:"requested_at"`
	RecommendedVehicleID *string     `json:"recommended_vehicle_id,omitempty"`
	RequiresNewDispatch  bool        `json:"requires_new_dispatch"`
	Score                float64     `json:"score"`
	Explanation          Explanation `json:"explanation"`
	ShadowMode           bool        `json:"shadow_mode"`
	Executed             bool        `json:"executed"`
	ExecutedAt           *time.Time  `json:"executed_at,omitempty"`
	Overridden           bool        `json:"overridden"`
	OverrideReason       string      `json:"override_reason,omitempty"`
	OverriddenBy         string      `json:"overridden_by,omitempty"`
	OverriddenAt         *time.Time  `json:"overridden_at,omitempty"`
	OverrideID           string      `json:"override_id,omitempty"`
	// Version is the optimistic concurrency token maintained by the store.
	Version int64 `json:"version"`
}

// VehicleID returns the recommended vehicle or an empty string.
func (d DecisionRecord) VehicleID() string {
	if d.RecommendedVehicleID == nil {
		return ""
	}
	return *d.RecommendedVehicleID
}
