package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/store"
)

var (
	_ store.DecisionStore = (*DecisionStore)(nil)
	_ store.OverrideStore = (*OverrideStore)(nil)
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "consolidation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDecisionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).Decisions()
	base := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	vid := "van-1"

	created, err := s.Create(ctx, model.DecisionRecord{ID: "d1", ParcelID: "p1", RequestedAt: base, RecommendedVehicleID: &vid, Score: 81.5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	_, err = s.Create(ctx, model.DecisionRecord{ID: "d1", ParcelID: "p1"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	got, err := s.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "van-1", got.VehicleID())
	assert.True(t, got.RequestedAt.Equal(base))

	got.Executed = true
	updated, err := s.Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = s.Update(ctx, got)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Update(ctx, model.DecisionRecord{ID: "missing", Version: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	reread, err := s.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, reread.Executed)
	assert.Equal(t, int64(2), reread.Version)
}

func TestDecisionStoreFind(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).Decisions()
	base := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	recs := []model.DecisionRecord{
		{ID: "a", ParcelID: "p1", RequestedAt: base},
		{ID: "b", ParcelID: "p1", RequestedAt: base.Add(time.Minute), ShadowMode: true},
		{ID: "c", ParcelID: "p1", RequestedAt: base.Add(2 * time.Minute)},
		{ID: "d", ParcelID: "p2", RequestedAt: base.Add(3 * time.Minute)},
	}
	for _, r := range recs {
		_, err := s.Create(ctx, r)
		require.NoError(t, err)
	}

	prod := false
	out, err := s.Find(ctx, store.DecisionFilter{ParcelID: "p1", ShadowMode: &prod})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(out))

	out, err = s.Find(ctx, store.DecisionFilter{Since: base.Add(time.Minute), Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c"}, ids(out))

	out, err = s.Find(ctx, store.DecisionFilter{Until: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(out))
}

func TestOverrideStore(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).Overrides()
	base := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

	_, err := s.Create(ctx, model.OverrideRecord{ID: "o1", DecisionID: "d1", Status: model.OverridePending, RiskLevel: model.RiskHigh, CreatedAt: base})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.OverrideRecord{ID: "o2", DecisionID: "d1", Status: model.OverridePending, RiskLevel: model.RiskLow, CreatedAt: base.Add(time.Minute)})
	require.NoError(t, err)

	o1, err := s.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.RiskHigh, o1.RiskLevel)

	o1.Status = model.OverrideApproved
	_, err = s.Update(ctx, o1)
	require.NoError(t, err)

	pending, err := s.Find(ctx, store.OverrideFilter{Status: model.OverridePending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	forDecision, err := s.Find(ctx, store.OverrideFilter{DecisionID: "d1"})
	require.NoError(t, err)
	require.Len(t, forDecision, 2)
	assert.Equal(t, "o2", forDecision[0].ID)

	_, err = s.Update(ctx, o1)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestBindPostgresPlaceholders(t *testing.T) {
	d := &DB{dialect: postgres}
	assert.Equal(t, "UPDATE t SET a = $1 WHERE id = $2", d.bind("UPDATE t SET a = ? WHERE id = ?"))
	s := &DB{dialect: sqlite}
	assert.Equal(t, "SELECT ?", s.bind("SELECT ?"))
}

func ids(recs []model.DecisionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
