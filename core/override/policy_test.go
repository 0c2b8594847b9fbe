package override

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/consolidation/core/model"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return "step-" + strconv.Itoa(n)
	}
}

func roles(steps []model.ApprovalStep) []model.ApproverRole {
	out := make([]model.ApproverRole, len(steps))
	for i, s := range steps {
		out[i] = s.Role
	}
	return out
}

func TestChainComposition(t *testing.T) {
	p := DefaultPolicies()
	d, a := model.RoleDispatcher, model.RoleAdmin
	cases := []struct {
		level   model.RiskLevel
		bypass  bool
		want    []model.ApproverRole
		timeout time.Duration
	}{
		{model.RiskLow, false, []model.ApproverRole{d}, 30 * time.Minute},
		{model.RiskLow, true, []model.ApproverRole{d, a}, 60 * time.Minute},
		{model.RiskMedium, false, []model.ApproverRole{d, a}, 60 * time.Minute},
		{model.RiskMedium, true, []model.ApproverRole{a, a}, 120 * time.Minute},
		{model.RiskHigh, false, []model.ApproverRole{a, a}, 120 * time.Minute},
		{model.RiskCritical, false, []model.ApproverRole{a, a, a}, 240 * time.Minute},
		{model.RiskCritical, true, []model.ApproverRole{a, a, a}, 240 * time.Minute},
	}
	for _, tc := range cases {
		eff := EffectiveRiskLevel(tc.level, tc.bypass)
		chain := p.Chain(eff, seqIDs())
		assert.Equal(t, tc.want, roles(chain), "%s bypass=%v", tc.level, tc.bypass)
		assert.Equal(t, tc.timeout, p.For(eff).Timeout)
		for _, s := range chain {
			assert.Equal(t, model.StepPending, s.Status)
			assert.True(t, s.Required)
		}
	}
}

func TestTimeoutConfigApply(t *testing.T) {
	p := TimeoutConfig{HighMinutes: 90}.Apply(DefaultPolicies())
	assert.Equal(t, 90*time.Minute, p.For(model.RiskHigh).Timeout)
	assert.Equal(t, 30*time.Minute, p.For(model.RiskLow).Timeout)
	assert.Equal(t, 120*time.Minute, DefaultPolicies().For(model.RiskHigh).Timeout)
	assert.Error(t, TimeoutConfig{LowMinutes: -1}.Validate())
}
