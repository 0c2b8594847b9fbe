package model

import "time"

// SLATier grades the delivery commitment risk of an override.
type SLATier string

const (
	SLATierLow      SLATier = "low"
	SLATierMedium   SLATier = "medium"
	SLATierHigh     SLATier = "high"
	SLATierCritical SLATier = "critical"
)

// AffectedParcel is a parcel already on the route whose ETA would move.
type AffectedParcel struct {
	ParcelID    string    `json:"parcel_id"`
	OriginalETA time.Time `json:"original_eta"`
	NewETA      time.Time `json:"new_eta"`
	SLADeadline time.Time `json:"sla_deadline"`
}

type SLAImpact struct {
	AffectedParcelIDs     []string `json:"affected_parcel_ids"`
	RiskTier              SLATier  `json:"risk_tier"`
	EstimatedDelayMinutes float64  `json:"estimated_delay_minutes"`
	WorstViolationMinutes float64  `json:"worst_violation_minutes"`
	Mitigations           []string `json:"mitigations,omitempty"`
}

type CapacityImpact struct {
	CurrentUtilization   float64  `json:"current_utilization"`
	ProjectedUtilization float64  `json:"projected_utilization"`
	ExceedsCapacity      bool     `json:"exceeds_capacity"`
	AlternativeVehicles  []string `json:"alternative_vehicles,omitempty"`
}

type RouteImpact struct {
	ExtraDistanceKm  float64 `json:"extra_distance_km"`
	ExtraTimeMinutes float64 `json:"extra_time_minutes"`
	FuelCostDelta    float64 `json:"fuel_cost_delta"`
	EmissionsDeltaKg float64 `json:"emissions_delta_kg"`
}

type CostImpact struct {
	FuelCost        float64 `json:"fuel_cost"`
	SLAPenalties    float64 `json:"sla_penalties"`
	OperationalCost float64 `json:"operational_cost"`
	Total           float64 `json:"total"`
}

// OverrideImpactAssessment quantifies the consequences of an override.
type OverrideImpactAssessment struct {
	SLA             SLAImpact      `json:"sla"`
	Capacity        CapacityImpact `json:"capacity"`
	Route           RouteImpact    `json:"route"`
	Cost            CostImpact     `json:"cost"`
	RiskScore       float64        `json:"risk_score"`
	Recommendations []string       `json:"recommendations"`
	AssessedAt      time.Time      `json:"assessed_at"`
}
