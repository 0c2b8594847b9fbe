package override

import (
	"fmt"
	"time"

	"github.com/kilianp07/consolidation/core/model"
)

// Policy is the approval requirement for one risk level.
type Policy struct {
	Roles   []model.ApproverRole
	Timeout time.Duration
}

// Policies maps every risk level to its policy. Indexing by RiskLevel keeps
// the table exhaustive; the RiskUnknown slot is never used.
type Policies [model.RiskCritical + 1]Policy

// DefaultPolicies returns the standard approval table.
func DefaultPolicies() Policies {
	return Policies{
		model.RiskLow:      {Roles: []model.ApproverRole{model.RoleDispatcher}, Timeout: 30 * time.Minute},
		model.RiskMedium:   {Roles: []model.ApproverRole{model.RoleDispatcher, model.RoleAdmin}, Timeout: 60 * time.Minute},
		model.RiskHigh:     {Roles: []model.ApproverRole{model.RoleAdmin, model.RoleAdmin}, Timeout: 120 * time.Minute},
		model.RiskCritical: {Roles: []model.ApproverRole{model.RoleAdmin, model.RoleAdmin, model.RoleAdmin}, Timeout: 240 * time.Minute},
	}
}

// TimeoutConfig overrides the per-level timeouts in minutes. Zero keeps the
// default.
type TimeoutConfig struct {
	LowMinutes      int `json:"low_minutes"`
	MediumMinutes   int `json:"medium_minutes"`
	HighMinutes     int `json:"high_minutes"`
	CriticalMinutes int `json:"critical_minutes"`
}

// Validate rejects negative timeouts.
func (c TimeoutConfig) Validate() error {
	for _, m := range []int{c.LowMinutes, c.MediumMinutes, c.HighMinutes, c.CriticalMinutes} {
		if m < 0 {
			return fmt.Errorf("override timeout must not be negative: %d", m)
		}
	}
	return nil
}

// Apply returns p with the configured timeouts.
func (c TimeoutConfig) Apply(p Policies) Policies {
	for lvl, m := range map[model.RiskLevel]int{
		model.RiskLow:      c.LowMinutes,
		model.RiskMedium:   c.MediumMinutes,
		model.RiskHigh:     c.HighMinutes,
		model.RiskCritical: c.CriticalMinutes,
	} {
		if m > 0 {
			p[lvl].Timeout = time.Duration(m) * time.Minute
		}
	}
	return p
}

// EffectiveRiskLevel escalates one tier when the SLA is bypassed.
func EffectiveRiskLevel(level model.RiskLevel, bypassesSLA bool) model.RiskLevel {
	if bypassesSLA {
		return level.Escalate()
	}
	return level
}

// For returns the policy of level.
func (p Policies) For(level model.RiskLevel) Policy {
	if !level.Valid() {
		return p[model.RiskCritical]
	}
	return p[level]
}

// Chain builds a fresh approval chain for level. Every step is required.
func (p Policies) Chain(level model.RiskLevel, newID func() string) []model.ApprovalStep {
	roles := p.For(level).Roles
	steps := make([]model.ApprovalStep, len(roles))
	for i, r := range roles {
		steps[i] = model.ApprovalStep{ID: newID(), Role: r, Status: model.StepPending, Required: true}
	}
	return steps
}
