package shadow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/store"
	"github.com/kilianp07/consolidation/infra/store/memory"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func decision(id, parcel, vehicle string, score float64, at time.Time, shadowMode bool) model.DecisionRecord {
	rec := model.DecisionRecord{ID: id, ParcelID: parcel, Score: score, RequestedAt: at, ShadowMode: shadowMode}
	if vehicle != "" {
		v := vehicle
		rec.RecommendedVehicleID = &v
	}
	return rec
}

func seed(t *testing.T, st store.DecisionStore, recs ...model.DecisionRecord) {
	t.Helper()
	for _, r := range recs {
		_, err := st.Create(context.Background(), r)
		require.NoError(t, err)
	}
}

type eventLog struct {
	mu  sync.Mutex
	evs []events.ShadowEvent
}

func (l *eventLog) Notify(_ context.Context, ev any) error {
	if se, ok := ev.(events.ShadowEvent); ok {
		l.mu.Lock()
		l.evs = append(l.evs, se)
		l.mu.Unlock()
	}
	return nil
}

type failingStore struct{ *memory.DecisionStore }

func (failingStore) Create(context.Context, model.DecisionRecord) (model.DecisionRecord, error) {
	return model.DecisionRecord{}, errors.New("db unavailable")
}

type auditRecorder struct{ recs []model.DecisionRecord }

func (a *auditRecorder) Append(rec model.DecisionRecord) error {
	a.recs = append(a.recs, rec)
	return nil
}

func TestValidateShadowDecisions_Empty(t *testing.T) {
	c := NewComparator(Config{}, memory.NewDecisionStore(), WithClock(clock))
	defer c.Close()
	res, err := c.ValidateShadowDecisions(context.Background(), "p1", 24)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalComparisons)
	assert.Equal(t, 0.0, res.AverageScoreDifference)
}

func TestCompareDecisions(t *testing.T) {
	c := NewComparator(Config{}, memory.NewDecisionStore())
	defer c.Close()

	cmp := c.CompareDecisions(decision("s", "p", "v1", 80, now, true), decision("p", "p", "v1", 75, now, false))
	assert.Equal(t, 5.0, cmp.ScoreDifference)
	assert.False(t, cmp.VehicleMismatch)
	assert.False(t, cmp.RequiresReview)

	cmp = c.CompareDecisions(decision("s", "p", "v1", 80, now, true), decision("p", "p", "v1", 65, now, false))
	assert.True(t, cmp.RequiresReview)

	cmp = c.CompareDecisions(decision("s", "p", "v1", 80, now, true), decision("p", "p", "v2", 80, now, false))
	assert.True(t, cmp.VehicleMismatch)
	assert.True(t, cmp.RequiresReview)
}

func TestLogShadowDecision_PersistsWhenEnabled(t *testing.T) {
	st := memory.NewDecisionStore()
	ev := &eventLog{}
	audit := &auditRecorder{}
	c := NewComparator(Config{Enabled: true}, st, WithClock(clock), WithNotifier(ev), WithAudit(audit))

	rec := decision("", "p1", "v1", 70, now, false)
	rec.Executed = true
	c.LogShadowDecision(context.Background(), rec)
	c.Close()

	got, err := c.History(context.Background(), "p1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].ShadowMode)
	assert.False(t, got[0].Executed)
	assert.NotEmpty(t, got[0].ID)
	assert.Len(t, audit.recs, 1)
	require.Len(t, ev.evs, 1)
	assert.Equal(t, events.ShadowLogged, ev.evs[0].Action)
}

func TestLogShadowDecision_DisabledIsNoop(t *testing.T) {
	st := memory.NewDecisionStore()
	c := NewComparator(Config{}, st)
	c.LogShadowDecision(context.Background(), decision("s1", "p1", "v1", 70, now, true))
	c.Close()
	got, err := st.Find(context.Background(), store.DecisionFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLogShadowDecision_FailureIsObservable(t *testing.T) {
	ev := &eventLog{}
	c := NewComparator(Config{LogAllDecisions: true}, failingStore{memory.NewDecisionStore()}, WithNotifier(ev))
	assert.NotPanics(t, func() {
		c.LogShadowDecision(context.Background(), decision("s1", "p1", "v1", 70, now, true))
	})
	c.Close()
	require.Len(t, ev.evs, 1)
	assert.Equal(t, events.ShadowFailed, ev.evs[0].Action)
	assert.Contains(t, ev.evs[0].Err, "db unavailable")
}

func TestLogShadowDecision_DropsAfterClose(t *testing.T) {
	c := NewComparator(Config{Enabled: true}, memory.NewDecisionStore())
	c.Close()
	c.LogShadowDecision(context.Background(), decision("s1", "p1", "v1", 70, now, true))
	assert.Equal(t, int64(1), c.Dropped())
}

func TestValidateShadowDecisions_Pairs(t *testing.T) {
	st := memory.NewDecisionStore()
	seed(t, st,
		decision("s1", "p1", "v1", 80, now.Add(-2*time.Hour), true),
		decision("d1", "p1", "v1", 78, now.Add(-2*time.Hour+time.Minute), false),
		decision("d0", "p1", "v9", 10, now.Add(-2*time.Hour-4*time.Minute), false),
		decision("s2", "p1", "v2", 90, now.Add(-time.Hour), true),
		decision("d2", "p1", "v3", 60, now.Add(-time.Hour-2*time.Minute), false),
		decision("s3", "p1", "v1", 50, now.Add(-30*time.Minute), true),
		decision("s4", "p2", "v1", 50, now.Add(-30*time.Minute), true),
	)
	c := NewComparator(Config{}, st, WithClock(clock))
	defer c.Close()

	res, err := c.ValidateShadowDecisions(context.Background(), "p1", 24)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ShadowDecisions)
	assert.Equal(t, 2, res.TotalComparisons)
	assert.Equal(t, 1, res.SameVehicle)
	assert.Equal(t, 1, res.SignificantDifferences)
	assert.Equal(t, 16.0, res.AverageScoreDifference)
}

func TestGeneratePerformanceReport(t *testing.T) {
	c := NewComparator(Config{}, memory.NewDecisionStore(), WithClock(clock))
	rep, err := c.GeneratePerformanceReport(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.TotalComparisons)
	assert.Contains(t, rep.Recommendations[0], "No shadow decisions")
	c.Close()

	st := memory.NewDecisionStore()
	seed(t, st,
		decision("s1", "p1", "v1", 80, now.Add(-time.Hour), true),
		decision("d1", "p1", "v2", 80, now.Add(-time.Hour), false),
		decision("s2", "p2", "v1", 80, now.Add(-time.Hour), true),
		decision("s3", "p3", "v1", 80, now.Add(-time.Hour), true),
	)
	c = NewComparator(Config{}, st, WithClock(clock))
	defer c.Close()
	rep, err = c.GeneratePerformanceReport(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Parcels)
	assert.Equal(t, 1, rep.TotalComparisons)
	assert.Equal(t, 0.0, rep.AccuracyRate)
	assert.Equal(t, 0.33, rep.MatchRate)
	assert.Len(t, rep.Recommendations, 2)
}

func TestSetConfig(t *testing.T) {
	c := NewComparator(Config{QueueSize: 4}, memory.NewDecisionStore())
	defer c.Close()
	cfg, err := c.SetConfig(Config{Enabled: true, ComparisonEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, DefaultValidationThreshold, cfg.ValidationThreshold)
	assert.Equal(t, 4, c.Config().QueueSize)

	_, err = c.SetConfig(Config{ValidationThreshold: -1})
	assert.Error(t, err)
}

func TestObserveProductionComparesNearestShadow(t *testing.T) {
	st := memory.NewDecisionStore()
	seed(t, st, decision("s1", "p1", "v1", 90, now.Add(-time.Minute), true))
	c := NewComparator(Config{ComparisonEnabled: true}, st, WithClock(clock))
	c.ObserveProduction(context.Background(), decision("d1", "p1", "v2", 60, now, false))
	assert.NotPanics(t, c.Close)
}

type blockingStore struct {
	*memory.DecisionStore
	entered chan struct{}
	release chan struct{}
}

func (b blockingStore) Find(ctx context.Context, f store.DecisionFilter) ([]model.DecisionRecord, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.DecisionStore.Find(ctx, f)
}

func TestObserveProductionIsBounded(t *testing.T) {
	st := blockingStore{
		DecisionStore: memory.NewDecisionStore(),
		entered:       make(chan struct{}, 8),
		release:       make(chan struct{}),
	}
	c := NewComparator(Config{ComparisonEnabled: true, QueueSize: 1}, st, WithClock(clock))

	c.ObserveProduction(context.Background(), decision("d1", "p1", "v1", 60, now, false))
	select {
	case <-st.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("comparison worker did not start")
	}
	c.ObserveProduction(context.Background(), decision("d2", "p1", "v1", 60, now, false))
	c.ObserveProduction(context.Background(), decision("d3", "p1", "v1", 60, now, false))
	c.ObserveProduction(context.Background(), decision("d4", "p1", "v1", 60, now, false))
	assert.Equal(t, int64(2), c.SkippedComparisons())

	close(st.release)
	c.Close()
	assert.Len(t, st.entered, 1)
	c.ObserveProduction(context.Background(), decision("d5", "p1", "v1", 60, now, false))
	assert.Equal(t, int64(2), c.SkippedComparisons())
}
