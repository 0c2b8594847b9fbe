package override

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/store"
)

// Get returns an override, expiring it first when its deadline passed.
func (s *Service) Get(ctx context.Context, id string) (model.OverrideRecord, error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return model.OverrideRecord{}, err
	}
	return s.expireIfDue(ctx, rec)
}

// ForDecision lists the overrides raised against a decision, newest first.
func (s *Service) ForDecision(ctx context.Context, decisionID string) ([]model.OverrideRecord, error) {
	recs, err := s.store.Find(ctx, store.OverrideFilter{DecisionID: decisionID})
	if err != nil {
		return nil, fmt.Errorf("overrides for decision %s: %w", decisionID, err)
	}
	for i := range recs {
		if recs[i], err = s.expireIfDue(ctx, recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// Pending lists live overrides that still need a step from role.
func (s *Service) Pending(ctx context.Context, role model.ApproverRole) ([]model.OverrideRecord, error) {
	recs, err := s.store.Find(ctx, store.OverrideFilter{Status: model.OverridePending})
	if err != nil {
		return nil, fmt.Errorf("pending overrides: %w", err)
	}
	out := make([]model.OverrideRecord, 0, len(recs))
	for _, rec := range recs {
		rec, err := s.expireIfDue(ctx, rec)
		if err != nil {
			return nil, err
		}
		if rec.Status == model.OverridePending && model.HasPendingStepFor(rec, role) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Sweep expires every pending override past its deadline and returns how
// many were changed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	recs, err := s.store.Find(ctx, store.OverrideFilter{Status: model.OverridePending})
	if err != nil {
		return 0, fmt.Errorf("sweep overrides: %w", err)
	}
	n := 0
	for _, rec := range recs {
		if !model.IsExpired(rec, s.now()) {
			continue
		}
		got, err := s.expireIfDue(ctx, rec)
		if err != nil {
			return n, err
		}
		if got.Status == model.OverrideExpired {
			n++
		}
	}
	return n, nil
}

// expireIfDue persists EXPIRED for a pending override past its deadline.
// A concurrent writer winning the race is not an error; the stored record
// is returned instead.
func (s *Service) expireIfDue(ctx context.Context, rec model.OverrideRecord) (model.OverrideRecord, error) {
	now := s.now()
	if rec.Status != model.OverridePending || !model.IsExpired(rec, now) {
		return rec, nil
	}
	rec.Status = model.OverrideExpired
	rec.UpdatedAt = now
	updated, err := s.store.Update(ctx, rec)
	if errors.Is(err, store.ErrConflict) {
		return s.find(ctx, rec.ID)
	}
	if err != nil {
		return model.OverrideRecord{}, fmt.Errorf("expire override %s: %w", rec.ID, err)
	}
	s.emit(ctx, updated, events.OverrideExpired, "")
	return updated, nil
}
