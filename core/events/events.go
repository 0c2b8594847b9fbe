package events

import (
	"context"
	"time"

	"github.com/kilianp07/consolidation/core/logger"
	"github.com/kilianp07/consolidation/core/model"
)

// DecisionAction names what happened to a decision record.
type DecisionAction string

const (
	DecisionCreated    DecisionAction = "created"
	DecisionExecuted   DecisionAction = "executed"
	DecisionOverridden DecisionAction = "overridden"
)

// DecisionEvent is published whenever a production decision changes.
type DecisionEvent struct {
	DecisionID          string         `json:"decision_id"`
	ParcelID            string         `json:"parcel_id"`
	VehicleID           string         `json:"vehicle_id,omitempty"`
	RequiresNewDispatch bool           `json:"requires_new_dispatch"`
	Score               float64        `json:"score"`
	Action              DecisionAction `json:"action"`
	At                  time.Time      `json:"at"`
}

// OverrideAction names an override lifecycle step.
type OverrideAction string

const (
	OverrideInitiated        OverrideAction = "initiated"
	OverrideApprovalRequired OverrideAction = "approval_required"
	OverrideApproved         OverrideAction = "approved"
	OverrideRejected         OverrideAction = "rejected"
	OverrideExpired          OverrideAction = "expired"
	OverrideCancelled        OverrideAction = "cancelled"
	OverrideExecuted         OverrideAction = "executed"
)

// OverrideEvent carries an override status change. NextRole is set for
// OverrideApprovalRequired.
type OverrideEvent struct {
	OverrideID string               `json:"override_id"`
	DecisionID string               `json:"decision_id"`
	Action     OverrideAction       `json:"action"`
	Status     model.OverrideStatus `json:"status"`
	RiskLevel  model.RiskLevel      `json:"risk_level"`
	NextRole   model.ApproverRole   `json:"next_role,omitempty"`
	Actor      string               `json:"actor,omitempty"`
	At         time.Time            `json:"at"`
}

// ShadowAction names the outcome of a shadow log attempt.
type ShadowAction string

const (
	ShadowLogged  ShadowAction = "logged"
	ShadowDropped ShadowAction = "dropped"
	ShadowFailed  ShadowAction = "failed"
)

// ShadowEvent reports the fate of an asynchronous shadow write.
type ShadowEvent struct {
	DecisionID string       `json:"decision_id"`
	ParcelID   string       `json:"parcel_id"`
	Action     ShadowAction `json:"action"`
	Err        string       `json:"error,omitempty"`
	At         time.Time    `json:"at"`
}

// Topic returns the channel name an event is routed to.
func Topic(ev any) string {
	switch ev.(type) {
	case DecisionEvent, *DecisionEvent:
		return "decisions"
	case OverrideEvent, *OverrideEvent:
		return "overrides"
	case ShadowEvent, *ShadowEvent:
		return "shadow"
	default:
		return "misc"
	}
}

// Notifier delivers events to an external channel.
type Notifier interface {
	Notify(ctx context.Context, ev any) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev any) error

func (f NotifierFunc) Notify(ctx context.Context, ev any) error { return f(ctx, ev) }

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, any) error { return nil }

// Dispatch forwards ev to n and logs any failure.
func Dispatch(ctx context.Context, n Notifier, log logger.Logger, ev any) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, ev); err != nil {
		logger.OrNop(log).Warnw("event notification failed", map[string]any{
			"topic": Topic(ev),
			"error": err.Error(),
		})
	}
}
