package model

import (
	"fmt"
	"strings"
	"time"
)

// RiskLevel is the ordered risk tier of an override request. The zero value
// is not a tier, so a request that omits its risk level fails validation.
type RiskLevel int

const (
	RiskUnknown RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

// RiskLevels lists every tier in ascending order.
var RiskLevels = [...]RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

var riskLevelNames = [...]string{"UNKNOWN", "LOW", "MEDIUM", "HIGH", "CRITICAL"}

// Valid reports whether r is one of the defined tiers.
func (r RiskLevel) Valid() bool { return r >= RiskLow && r <= RiskCritical }

// String returns the upper-case name of the tier.
func (r RiskLevel) String() string {
	if !r.Valid() {
		return "UNKNOWN"
	}
	return riskLevelNames[r]
}

// Escalate returns the next tier, saturating at CRITICAL.
func (r RiskLevel) Escalate() RiskLevel {
	if r >= RiskCritical {
		return RiskCritical
	}
	return r + 1
}

// ParseRiskLevel converts a case-insensitive tier name.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for _, r := range RiskLevels {
		if strings.EqualFold(s, r.String()) {
			return r, nil
		}
	}
	return RiskUnknown, fmt.Errorf("unknown risk level %q", s)
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid risk level %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *RiskLevel) UnmarshalText(b []byte) error {
	v, err := ParseRiskLevel(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// OverrideStatus is the lifecycle state of an override.
type OverrideStatus string

const (
	OverridePending   OverrideStatus = "PENDING"
	OverrideApproved  OverrideStatus = "APPROVED"
	OverrideRejected  OverrideStatus = "REJECTED"
	OverrideCancelled OverrideStatus = "CANCELLED"
	OverrideExpired   OverrideStatus = "EXPIRED"
)

// ApproverRole identifies who may act on an approval step.
type ApproverRole string

const (
	RoleDispatcher ApproverRole = "dispatcher"
	RoleAdmin      ApproverRole = "admin"
)

// StepStatus is the state of a single approval step.
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRejected StepStatus = "REJECTED"
	StepSkipped  StepStatus = "SKIPPED"
)

// ApprovalStep is one link in an override approval chain.
type ApprovalStep struct {
	ID         string       `json:"id"`
	Role       ApproverRole `json:"role"`
	ApproverID string       `json:"approver_id,omitempty"`
	Status     StepStatus   `json:"status"`
	Comments   string       `json:"comments,omitempty"`
	ActedAt    *time.Time   `json:"acted_at,omitempty"`
	Required   bool         `json:"required"`
}

// OverrideRequest is the caller input that opens an override.
type OverrideRequest struct {
	DecisionID         string    `json:"decision_id"`
	ParcelID           string    `json:"parcel_id"`
	RequestedVehicleID string    `json:"requested_vehicle_id,omitempty"`
	Reason             string    `json:"reason"`
	Justification      string    `json:"justification"`
	RequestedBy        string    `json:"requested_by"`
	BypassesSLA        bool      `json:"bypasses_sla"`
	RiskLevel          RiskLevel `json:"risk_level,omitempty"`
}

// Validate checks the mandatory fields.
func (r OverrideRequest) Validate() error {
	switch {
	case r.DecisionID == "":
		return fmt.Errorf("decision_id is required")
	case r.RequestedBy == "":
		return fmt.Errorf("requested_by is required")
	case r.Reason == "":
		return fmt.Errorf("reason is required")
	case r.RiskLevel == RiskUnknown:
		return fmt.Errorf("risk_level is required")
	case !r.RiskLevel.Valid():
		return fmt.Errorf("invalid risk level %d", int(r.RiskLevel))
	}
	return nil
}

// OverrideRecord is the persisted override and its approval state.
type OverrideRecord struct {
	ID                 string                    `json:"id"`
	DecisionID         string                    `json:"decision_id"`
	ParcelID           string                    `json:"parcel_id"`
	RequestedVehicleID string                    `json:"requested_vehicle_id,omitempty"`
	Reason             string                    `json:"reason"`
	Justification      string                    `json:"justification"`
	RequestedBy        string                    `json:"requested_by"`
	BypassesSLA        bool                      `json:"bypasses_sla"`
	RiskLevel          RiskLevel                 `json:"risk_level"`
	EffectiveRiskLevel RiskLevel                 `json:"effective_risk_level"`
	Status             OverrideStatus            `json:"status"`
	ApprovalChain      []ApprovalStep            `json:"approval_chain"`
	Impact             *OverrideImpactAssessment `json:"impact,omitempty"`
	ApprovedBy         string                    `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time                `json:"approved_at,omitempty"`
	RejectedBy         string                    `json:"rejected_by,omitempty"`
	RejectedAt         *time.Time                `json:"rejected_at,omitempty"`
	CancelledBy        string                    `json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time                `json:"cancelled_at,omitempty"`
	ExecutedBy         string                    `json:"executed_by,omitempty"`
	ExecutedAt         *time.Time                `json:"executed_at,omitempty"`
	ExpiresAt          time.Time                 `json:"expires_at"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
	Version            int64                     `json:"version"`
}

// IsExpired reports whether the override deadline has passed at now.
func IsExpired(o OverrideRecord, now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

// CanBeExecuted reports whether an approved override may still be executed.
func CanBeExecuted(o OverrideRecord, now time.Time) bool {
	return o.Status == OverrideApproved && !IsExpired(o, now) && o.ExecutedAt == nil
}

// HasPendingStepFor reports whether a pending step is assigned to role.
func HasPendingStepFor(o OverrideRecord, role ApproverRole) bool {
	for _, s := range o.ApprovalChain {
		if s.Status == StepPending && s.Role == role {
			return true
		}
	}
	return false
}

// CloneChain returns a deep copy of the approval chain.
func CloneChain(steps []ApprovalStep) []ApprovalStep {
	out := make([]ApprovalStep, len(steps))
	for i, s := range steps {
		if s.ActedAt != nil {
			t := *s.ActedAt
			s.ActedAt = &t
		}
		out[i] = s
	}
	return out
}
