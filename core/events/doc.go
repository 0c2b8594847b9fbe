// Package events defines the notifications emitted by the decision engine.
//
// Available event types:
//   - DecisionEvent: a decision record was created, executed or manually overridden
//   - OverrideEvent: an override changed state or awaits an approver role
//   - ShadowEvent: a shadow decision was logged, dropped or failed to persist
//
// Delivery is best effort. Publishers call Dispatch, which logs notifier
// failures and never returns them.
package events
