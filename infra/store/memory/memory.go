// Package memory provides map-backed stores used by default and in tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/store"
)

// DecisionStore keeps decision records in memory.
type DecisionStore struct {
	mu   sync.RWMutex
	recs map[string]model.DecisionRecord
}

func NewDecisionStore() *DecisionStore {
	return &DecisionStore{recs: make(map[string]model.DecisionRecord)}
}

func (s *DecisionStore) Create(_ context.Context, rec model.DecisionRecord) (model.DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.ID]; ok {
		return model.DecisionRecord{}, store.ErrDuplicate
	}
	rec.Version = 1
	s.recs[rec.ID] = cloneDecision(rec)
	return rec, nil
}

func (s *DecisionStore) FindByID(_ context.Context, id string) (model.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return model.DecisionRecord{}, store.ErrNotFound
	}
	return cloneDecision(rec), nil
}

func (s *DecisionStore) Find(_ context.Context, f store.DecisionFilter) ([]model.DecisionRecord, error) {
	s.mu.RLock()
	out := make([]model.DecisionRecord, 0)
	for _, rec := range s.recs {
		if f.Match(rec) {
			out = append(out, cloneDecision(rec))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *DecisionStore) Update(_ context.Context, rec model.DecisionRecord) (model.DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recs[rec.ID]
	if !ok {
		return model.DecisionRecord{}, store.ErrNotFound
	}
	if cur.Version != rec.Version {
		return model.DecisionRecord{}, store.ErrConflict
	}
	rec.Version++
	s.recs[rec.ID] = cloneDecision(rec)
	return rec, nil
}

// OverrideStore keeps override records in memory.
type OverrideStore struct {
	mu   sync.RWMutex
	recs map[string]model.OverrideRecord
}

func NewOverrideStore() *OverrideStore {
	return &OverrideStore{recs: make(map[string]model.OverrideRecord)}
}

func (s *OverrideStore) Create(_ context.Context, rec model.OverrideRecord) (model.OverrideRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.ID]; ok {
		return model.OverrideRecord{}, store.ErrDuplicate
	}
	rec.Version = 1
	s.recs[rec.ID] = cloneOverride(rec)
	return rec, nil
}

func (s *OverrideStore) FindByID(_ context.Context, id string) (model.OverrideRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return model.OverrideRecord{}, store.ErrNotFound
	}
	return cloneOverride(rec), nil
}

func (s *OverrideStore) Find(_ context.Context, f store.OverrideFilter) ([]model.OverrideRecord, error) {
	s.mu.RLock()
	out := make([]model.OverrideRecord, 0)
	for _, rec := range s.recs {
		if f.Match(rec) {
			out = append(out, cloneOverride(rec))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *OverrideStore) Update(_ context.Context, rec model.OverrideRecord) (model.OverrideRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recs[rec.ID]
	if !ok {
		return model.OverrideRecord{}, store.ErrNotFound
	}
	if cur.Version != rec.Version {
		return model.OverrideRecord{}, store.ErrConflict
	}
	rec.Version++
	s.recs[rec.ID] = cloneOverride(rec)
	return rec, nil
}

// Records hold slices and pointers; a JSON round trip keeps callers from
// mutating stored state through shared backing arrays.
func cloneDecision(rec model.DecisionRecord) model.DecisionRecord {
	var out model.DecisionRecord
	deepCopy(rec, &out)
	return out
}

func cloneOverride(rec model.OverrideRecord) model.OverrideRecord {
	var out model.OverrideRecord
	deepCopy(rec, &out)
	return out
}

func deepCopy(in, out any) {
	b, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		panic(err)
	}
}
