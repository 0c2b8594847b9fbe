package decision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/store"
	"github.com/kilianp07/consolidation/infra/store/memory"
)

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []any
}

func (n *recordingNotifier) Notify(_ context.Context, ev any) error {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) actions() []events.DecisionAction {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []events.DecisionAction
	for _, ev := range n.events {
		if de, ok := ev.(events.DecisionEvent); ok {
			out = append(out, de.Action)
		}
	}
	return out
}

type recordingShadow struct {
	logged   []model.DecisionRecord
	observed []model.DecisionRecord
}

func (r *recordingShadow) LogShadowDecision(_ context.Context, rec model.DecisionRecord) {
	r.logged = append(r.logged, rec)
}

func (r *recordingShadow) ObserveProduction(_ context.Context, rec model.DecisionRecord) {
	r.observed = append(r.observed, rec)
}

type failingStore struct{ store.DecisionStore }

func (failingStore) Create(context.Context, model.DecisionRecord) (model.DecisionRecord, error) {
	return model.DecisionRecord{}, errors.New("disk full")
}

func request() model.DecisionRequest {
	return model.DecisionRequest{
		ParcelID:    "parcel-1",
		Pickup:      model.Coordinates{Lat: 48.85, Lng: 2.35},
		Delivery:    model.Coordinates{Lat: 48.86, Lng: 2.36},
		SLADeadline: now.Add(4 * time.Hour),
		WeightKg:    5,
		Priority:    model.PriorityStandard,
	}
}

func vehicle(id string, loadKg, elig float64) model.VehicleSnapshot {
	return model.VehicleSnapshot{
		ID:               id,
		Type:             model.VehicleFourWheeler,
		Capacity:         model.Capacity{MaxWeightKg: 100, CurrentWeightKg: loadKg},
		Location:         model.Coordinates{Lat: 48.84, Lng: 2.34},
		EligibilityScore: elig,
	}
}

func newTestService(t *testing.T, st store.DecisionStore, opts ...Option) *Service {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewService(Config{}, st, opts...)
}

func TestEvaluate_RecommendsBestEligible(t *testing.T) {
	st := memory.NewDecisionStore()
	n := &recordingNotifier{}
	sh := &recordingShadow{}
	svc := newTestService(t, st, WithNotifier(n), WithShadowSink(sh))

	resp, err := svc.Evaluate(context.Background(), request(),
		[]model.VehicleSnapshot{vehicle("full", 99, 1), vehicle("good", 70, 0.9), vehicle("ok", 20, 0.5)}, false)
	require.NoError(t, err)

	d := resp.Decision
	assert.False(t, d.RequiresNewDispatch)
	assert.Equal(t, "good", d.VehicleID())
	assert.Greater(t, d.Score, 80.0)
	assert.Equal(t, int64(1), d.Version)
	require.Len(t, resp.Candidates, 3)
	last := resp.Candidates[2]
	assert.Equal(t, "full", last.VehicleID)
	assert.Equal(t, 0.0, last.Score)
	assert.Contains(t, last.Violations, "capacity")
	assert.Contains(t, d.Explanation.Reasoning, "Vehicle good selected")

	hist, err := svc.History(context.Background(), "parcel-1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, d.ID, hist[0].ID)
	assert.Equal(t, []events.DecisionAction{events.DecisionCreated}, n.actions())
	assert.Len(t, sh.observed, 1)
}

func TestEvaluate_NewDispatchWhenNoneEligible(t *testing.T) {
	svc := newTestService(t, memory.NewDecisionStore())
	resp, err := svc.Evaluate(context.Background(), request(), []model.VehicleSnapshot{vehicle("a", 98, 1), vehicle("b", 96, 1)}, false)
	require.NoError(t, err)
	assert.True(t, resp.Decision.RequiresNewDispatch)
	assert.Nil(t, resp.Decision.RecommendedVehicleID)
	assert.GreaterOrEqual(t, resp.Decision.Explanation.Risk.SLARisk, 0.8)
	assert.Len(t, resp.Decision.Explanation.Alternatives, 2)
}

func TestEvaluate_EmptyCandidates(t *testing.T) {
	svc := newTestService(t, memory.NewDecisionStore())
	resp, err := svc.Evaluate(context.Background(), request(), nil, false)
	require.NoError(t, err)
	assert.True(t, resp.Decision.RequiresNewDispatch)
	assert.Equal(t, 0.3, resp.Decision.Explanation.Risk.SLARisk)
}

func TestEvaluate_LowScoreRequiresNewDispatch(t *testing.T) {
	svc := newTestService(t, memory.NewDecisionStore())
	req := request()
	req.SLADeadline = now.Add(70 * time.Minute)
	resp, err := svc.Evaluate(context.Background(), req, []model.VehicleSnapshot{vehicle("empty", 0, 0)}, false)
	require.NoError(t, err)
	assert.True(t, resp.Decision.RequiresNewDispatch)
	assert.Nil(t, resp.Decision.RecommendedVehicleID)
	assert.Less(t, resp.Decision.Score, 50.0)
}

func TestEvaluate_InvalidRequest(t *testing.T) {
	svc := newTestService(t, memory.NewDecisionStore())
	req := request()
	req.ParcelID = ""
	_, err := svc.Evaluate(context.Background(), req, nil, false)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEvaluate_SkipsInvalidVehicles(t *testing.T) {
	svc := newTestService(t, memory.NewDecisionStore())
	bad := vehicle("bad", 10, 1)
	bad.Location = model.Coordinates{Lat: 120, Lng: 0}
	resp, err := svc.Evaluate(context.Background(), request(), []model.VehicleSnapshot{bad, vehicle("good", 70, 0.9)}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad"}, resp.Skipped)
	assert.Equal(t, "good", resp.Decision.VehicleID())
}

func TestEvaluate_ShadowModeIsNotStored(t *testing.T) {
	st := memory.NewDecisionStore()
	sh := &recordingShadow{}
	svc := newTestService(t, st, WithShadowSink(sh))

	resp, err := svc.Evaluate(context.Background(), request(), []model.VehicleSnapshot{vehicle("good", 70, 0.9)}, true)
	require.NoError(t, err)
	assert.True(t, resp.Decision.ShadowMode)
	require.Len(t, sh.logged, 1)
	assert.False(t, sh.logged[0].Executed)
	assert.Empty(t, sh.observed)

	_, err = st.FindByID(context.Background(), resp.Decision.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEvaluate_StoreFailureIsInternal(t *testing.T) {
	svc := newTestService(t, failingStore{memory.NewDecisionStore()})
	_, err := svc.Evaluate(context.Background(), request(), []model.VehicleSnapshot{vehicle("good", 70, 0.9)}, false)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestMarkExecuted_Idempotent(t *testing.T) {
	n := &recordingNotifier{}
	svc := newTestService(t, memory.NewDecisionStore(), WithNotifier(n))
	resp, err := svc.Evaluate(context.Background(), request(), []model.VehicleSnapshot{vehicle("good", 70, 0.9)}, false)
	require.NoError(t, err)

	first, err := svc.MarkExecuted(context.Background(), resp.Decision.ID)
	require.NoError(t, err)
	assert.True(t, first.Executed)
	require.NotNil(t, first.ExecutedAt)

	second, err := svc.MarkExecuted(context.Background(), resp.Decision.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, []events.DecisionAction{events.DecisionCreated, events.DecisionExecuted}, n.actions())

	_, err = svc.MarkExecuted(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordManualOverride(t *testing.T) {
	svc := newTestService(t, memory.NewDecisionStore())
	resp, err := svc.Evaluate(context.Background(), request(), []model.VehicleSnapshot{vehicle("good", 70, 0.9)}, false)
	require.NoError(t, err)

	rec, err := svc.RecordManualOverride(context.Background(), resp.Decision.ID, "customer asked", "dispatcher-7")
	require.NoError(t, err)
	assert.True(t, rec.Overridden)
	assert.Equal(t, "customer asked", rec.OverrideReason)
	assert.Equal(t, "dispatcher-7", rec.OverriddenBy)
	assert.NotNil(t, rec.OverriddenAt)

	_, err = svc.RecordManualOverride(context.Background(), resp.Decision.ID, "", "u")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLinkOverride(t *testing.T) {
	svc := newTestService(t, memory.NewDecisionStore())
	resp, err := svc.Evaluate(context.Background(), request(), []model.VehicleSnapshot{vehicle("good", 70, 0.9)}, false)
	require.NoError(t, err)

	at := now.Add(time.Minute)
	o := model.OverrideRecord{ID: "o1", Reason: "vip", ExecutedBy: "admin-1", ExecutedAt: &at}
	require.NoError(t, svc.LinkOverride(context.Background(), resp.Decision.ID, o))

	rec, err := svc.Get(context.Background(), resp.Decision.ID)
	require.NoError(t, err)
	assert.Equal(t, "o1", rec.OverrideID)
	assert.Equal(t, "admin-1", rec.OverriddenBy)
	assert.True(t, rec.OverriddenAt.Equal(at))
}
