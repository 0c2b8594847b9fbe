package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/store"
)

// Get returns one decision by id.
func (s *Service) Get(ctx context.Context, id string) (model.DecisionRecord, error) {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return model.DecisionRecord{}, mapStoreErr(id, err)
	}
	return rec, nil
}

// History returns the production decisions for a parcel, newest first.
func (s *Service) History(ctx context.Context, parcelID string) ([]model.DecisionRecord, error) {
	production := false
	recs, err := s.store.Find(ctx, store.DecisionFilter{ParcelID: parcelID, ShadowMode: &production})
	if err != nil {
		return nil, fmt.Errorf("decision history for %s: %w", parcelID, err)
	}
	return recs, nil
}

// MarkExecuted flags a decision as acted upon. Repeated calls are no-ops.
func (s *Service) MarkExecuted(ctx context.Context, id string) (model.DecisionRecord, error) {
	changed := false
	rec, err := s.mutate(ctx, id, func(rec *model.DecisionRecord) (bool, error) {
		if rec.ShadowMode {
			return false, ErrShadowDecision
		}
		if rec.Executed {
			return false, nil
		}
		now := s.now()
		rec.Executed = true
		rec.ExecutedAt = &now
		changed = true
		return true, nil
	})
	if err != nil {
		return model.DecisionRecord{}, err
	}
	if changed {
		events.Dispatch(ctx, s.notifier, s.log, decisionEvent(rec, events.DecisionExecuted, s.now()))
	}
	return rec, nil
}

// RecordManualOverride stamps a lightweight override audit on a decision.
func (s *Service) RecordManualOverride(ctx context.Context, id, reason, userID string) (model.DecisionRecord, error) {
	if strings.TrimSpace(reason) == "" || strings.TrimSpace(userID) == "" {
		return model.DecisionRecord{}, fmt.Errorf("%w: reason and user id are required", ErrInvalidRequest)
	}
	rec, err := s.mutate(ctx, id, func(rec *model.DecisionRecord) (bool, error) {
		if rec.ShadowMode {
			return false, ErrShadowDecision
		}
		now := s.now()
		rec.Overridden = true
		rec.OverrideReason = reason
		rec.OverriddenBy = userID
		rec.OverriddenAt = &now
		return true, nil
	})
	if err != nil {
		return model.DecisionRecord{}, err
	}
	events.Dispatch(ctx, s.notifier, s.log, decisionEvent(rec, events.DecisionOverridden, s.now()))
	return rec, nil
}

// LinkOverride records an executed override against its decision.
func (s *Service) LinkOverride(ctx context.Context, decisionID string, o model.OverrideRecord) error {
	_, err := s.mutate(ctx, decisionID, func(rec *model.DecisionRecord) (bool, error) {
		if rec.OverrideID == o.ID {
			return false, nil
		}
		rec.Overridden = true
		rec.OverrideID = o.ID
		rec.OverrideReason = o.Reason
		rec.OverriddenBy = o.ExecutedBy
		at := s.now()
		if o.ExecutedAt != nil {
			at = *o.ExecutedAt
		}
		rec.OverriddenAt = &at
		return true, nil
	})
	if err != nil {
		return err
	}
	events.Dispatch(ctx, s.notifier, s.log, events.DecisionEvent{
		DecisionID: decisionID,
		ParcelID:   o.ParcelID,
		VehicleID:  o.RequestedVehicleID,
		Action:     events.DecisionOverridden,
		At:         s.now(),
	})
	return nil
}

// mutate applies fn under compare-and-swap, re-reading on conflict. fn
// returns false when nothing needs to be written.
func (s *Service) mutate(ctx context.Context, id string, fn func(*model.DecisionRecord) (bool, error)) (model.DecisionRecord, error) {
	var out model.DecisionRecord
	err := store.RetryOnConflict(ctx, store.DefaultAttempts, func(ctx context.Context) error {
		rec, err := s.store.FindByID(ctx, id)
		if err != nil {
			return mapStoreErr(id, err)
		}
		write, err := fn(&rec)
		if err != nil {
			return err
		}
		if !write {
			out = rec
			return nil
		}
		out, err = s.store.Update(ctx, rec)
		return err
	})
	if err != nil {
		return model.DecisionRecord{}, err
	}
	return out, nil
}

func mapStoreErr(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
