// Package store declares the persistence boundary for decisions and
// overrides. Implementations live under infra/store.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/consolidation/core/model"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned by Update when the stored version moved on.
	ErrConflict = errors.New("store: version conflict")
	// ErrDuplicate is returned by Create for an id that already exists.
	ErrDuplicate = errors.New("store: duplicate id")
)

// DecisionFilter selects decision records. Zero fields match everything.
// Results are ordered by RequestedAt descending.
type DecisionFilter struct {
	ParcelID   string
	ShadowMode *bool
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Match reports whether d satisfies the filter, ignoring Limit.
func (f DecisionFilter) Match(d model.DecisionRecord) bool {
	if f.ParcelID != "" && d.ParcelID != f.ParcelID {
		return false
	}
	if f.ShadowMode != nil && d.ShadowMode != *f.ShadowMode {
		return false
	}
	if !f.Since.IsZero() && d.RequestedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && d.RequestedAt.After(f.Until) {
		return false
	}
	return true
}

// OverrideFilter selects override records, newest first.
type OverrideFilter struct {
	DecisionID string
	Status     model.OverrideStatus
	Limit      int
}

// Match reports whether o satisfies the filter, ignoring Limit.
func (f OverrideFilter) Match(o model.OverrideRecord) bool {
	if f.DecisionID != "" && o.DecisionID != f.DecisionID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

// DecisionStore persists DecisionRecords. Create sets Version to 1. Update
// succeeds only when rec.Version equals the stored version and returns the
// record with its version incremented.
type DecisionStore interface {
	Create(ctx context.Context, rec model.DecisionRecord) (model.DecisionRecord, error)
	FindByID(ctx context.Context, id string) (model.DecisionRecord, error)
	Find(ctx context.Context, f DecisionFilter) ([]model.DecisionRecord, error)
	Update(ctx context.Context, rec model.DecisionRecord) (model.DecisionRecord, error)
}

// OverrideStore persists OverrideRecords with the same versioning rules as
// DecisionStore.
type OverrideStore interface {
	Create(ctx context.Context, rec model.OverrideRecord) (model.OverrideRecord, error)
	FindByID(ctx context.Context, id string) (model.OverrideRecord, error)
	Find(ctx context.Context, f OverrideFilter) ([]model.OverrideRecord, error)
	Update(ctx context.Context, rec model.OverrideRecord) (model.OverrideRecord, error)
}

// DefaultAttempts bounds RetryOnConflict.
const DefaultAttempts = 3

// RetryOnConflict runs fn up to attempts times while it fails with
// ErrConflict. fn must re-read the record on every call.
func RetryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn(ctx)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

// Locker provides mutual exclusion per key across writers.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
