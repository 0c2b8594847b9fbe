package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/consolidation/api/decisions"
	"github.com/kilianp07/consolidation/core/decision"
	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/impact"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/override"
	coreshadow "github.com/kilianp07/consolidation/core/shadow"
	"github.com/kilianp07/consolidation/infra/notify"
	"github.com/kilianp07/consolidation/infra/store/memory"
	"github.com/kilianp07/consolidation/internal/eventbus"
)

const token = "secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(newDeps(t, nil), WithToken(token))
}

func newDeps(t *testing.T, bus eventbus.EventBus) Deps {
	t.Helper()
	var notifier events.Notifier = events.Nop{}
	if bus != nil {
		notifier = notify.NewBusNotifier(bus)
	}
	decStore := memory.NewDecisionStore()
	dec := decision.NewService(decision.Config{}, decStore, decision.WithNotifier(notifier))
	cmp := coreshadow.NewComparator(coreshadow.Config{}, decStore)
	t.Cleanup(cmp.Close)
	dec.SetShadowSink(cmp)
	ov := override.NewService(memory.NewOverrideStore(),
		override.WithDecisionReader(dec),
		override.WithDecisionLinker(dec),
	)
	return Deps{
		Decisions: dec,
		Overrides: ov,
		Impact:    impact.NewAssessor(impact.Config{}, dec, nil),
		Shadow:    cmp,
		Bus:       bus,
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func evaluateBody() decisions.EvaluateRequest {
	return decisions.EvaluateRequest{
		Request: model.DecisionRequest{
			ParcelID:    "PCL-1",
			Pickup:      model.Coordinates{Lat: 48.8570, Lng: 2.3530},
			Delivery:    model.Coordinates{Lat: 48.8590, Lng: 2.3580},
			SLADeadline: time.Now().Add(5 * time.Hour),
			WeightKg:    5,
		},
		Vehicles: []model.VehicleSnapshot{{
			ID:       "van-1",
			Type:     model.VehicleFourWheeler,
			Capacity: model.Capacity{MaxWeightKg: 100, CurrentWeightKg: 75, MaxVolumeM3: 2, CurrentVolumeM3: 0.5},
			Location: model.Coordinates{Lat: 48.8566, Lng: 2.3522},
			Route: []model.RouteStop{
				{ID: "s1", Kind: model.StopDelivery, Location: model.Coordinates{Lat: 48.8600, Lng: 2.3600}},
			},
			EligibilityScore: 0.9,
		}},
	}
}

func TestAuth(t *testing.T) {
	h := newTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/shadow/config", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDecisionRoutes(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/api/decisions/evaluate", evaluateBody())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[decision.Response](t, rr)
	require.NotNil(t, resp.Decision.RecommendedVehicleID)
	assert.Equal(t, "van-1", *resp.Decision.RecommendedVehicleID)
	id := resp.Decision.ID

	rr = do(t, h, http.MethodGet, "/api/decisions/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, id, decode[model.DecisionRecord](t, rr).ID)

	rr = do(t, h, http.MethodGet, "/api/parcels/PCL-1/decisions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.DecisionRecord](t, rr), 1)

	rr = do(t, h, http.MethodPost, "/api/decisions/"+id+"/execute", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[model.DecisionRecord](t, rr).Executed)

	rr = do(t, h, http.MethodPost, "/api/decisions/"+id+"/manual-override", decisions.ManualOverrideRequest{Reason: "driver sick"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/decisions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEvaluateRejectsInvalidRequest(t *testing.T) {
	h := newTestRouter(t)
	body := evaluateBody()
	body.Request.ParcelID = ""
	rr := do(t, h, http.MethodPost, "/api/decisions/evaluate", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/decisions/evaluate", map[string]any{"unknown": 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOverrideWorkflow(t *testing.T) {
	h := newTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/decisions/evaluate", evaluateBody())
	require.Equal(t, http.StatusOK, rr.Code)
	dec := decode[decision.Response](t, rr).Decision
	body := evaluateBody()

	rr = do(t, h, http.MethodPost, "/api/overrides", map[string]any{
		"override": model.OverrideRequest{
			DecisionID:         dec.ID,
			RequestedVehicleID: "van-1",
			Reason:             "customer request",
			RequestedBy:        "ops-1",
			RiskLevel:          model.RiskLow,
		},
		"assess": map[string]any{"request": body.Request, "vehicle": body.Vehicles[0]},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[override.Response](t, rr)
	assert.True(t, created.RequiresApproval)
	assert.Equal(t, model.RoleDispatcher, created.NextApproverRole)
	assert.NotNil(t, created.Override.Impact)
	id := created.Override.ID

	rr = do(t, h, http.MethodGet, "/api/overrides/pending?role=dispatcher", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.OverrideRecord](t, rr), 1)

	rr = do(t, h, http.MethodPost, "/api/overrides/"+id+"/execute", map[string]string{"actor": "ops-1"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/overrides/"+id+"/approvals", map[string]any{"approver_id": "disp-1", "approved": true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, model.OverrideApproved, decode[override.Response](t, rr).Override.Status)

	rr = do(t, h, http.MethodPost, "/api/overrides/"+id+"/approvals", map[string]any{"approver_id": "disp-2", "approved": true})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/overrides/"+id+"/execute", map[string]string{"actor": "ops-1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/decisions/"+dec.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	linked := decode[model.DecisionRecord](t, rr)
	assert.True(t, linked.Overridden)
	assert.Equal(t, id, linked.OverrideID)

	rr = do(t, h, http.MethodGet, "/api/decisions/"+dec.ID+"/overrides", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.OverrideRecord](t, rr), 1)

	rr = do(t, h, http.MethodPost, "/api/overrides/"+id+"/cancel", map[string]string{"actor": "ops-1"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/overrides/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOverrideUnknownDecision(t *testing.T) {
	h := newTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/overrides", map[string]any{
		"override": model.OverrideRequest{DecisionID: "nope", Reason: "r", RequestedBy: "ops", RiskLevel: model.RiskLow},
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOverrideRequiresRiskLevel(t *testing.T) {
	h := newTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/decisions/evaluate", evaluateBody())
	require.Equal(t, http.StatusOK, rr.Code)
	dec := decode[decision.Response](t, rr).Decision

	rr = do(t, h, http.MethodPost, "/api/overrides", map[string]any{
		"override": map[string]any{"decision_id": dec.ID, "reason": "customer asked", "requested_by": "u1"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/decisions/"+dec.ID+"/overrides", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]model.OverrideRecord](t, rr))
}

func TestImpactRoute(t *testing.T) {
	h := newTestRouter(t)
	body := evaluateBody()
	rr := do(t, h, http.MethodPost, "/api/overrides/impact", map[string]any{
		"override": model.OverrideRequest{DecisionID: "d", Reason: "r", RequestedBy: "ops", RiskLevel: model.RiskMedium},
		"request":  body.Request,
		"vehicle":  body.Vehicles[0],
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	a := decode[model.OverrideImpactAssessment](t, rr)
	assert.False(t, a.Capacity.ExceedsCapacity)

	body.Vehicles[0].Capacity.MaxWeightKg = 0
	rr = do(t, h, http.MethodPost, "/api/overrides/impact", map[string]any{
		"override": model.OverrideRequest{DecisionID: "d", Reason: "r", RequestedBy: "ops"},
		"request":  body.Request,
		"vehicle":  body.Vehicles[0],
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestShadowRoutes(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPut, "/api/shadow/config", coreshadow.Config{Enabled: true, ComparisonEnabled: true, ValidationThreshold: 5})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[coreshadow.Config](t, rr).Enabled)

	rr = do(t, h, http.MethodGet, "/api/shadow/config", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 5, decode[coreshadow.Config](t, rr).ValidationThreshold, 1e-9)

	rr = do(t, h, http.MethodPut, "/api/shadow/config", coreshadow.Config{ValidationThreshold: -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/shadow/report?hours=12", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 12, decode[coreshadow.PerformanceReport](t, rr).WindowHours, 1e-9)

	rr = do(t, h, http.MethodGet, "/api/shadow/report?hours=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/shadow/parcels/PCL-1/validation", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "PCL-1", decode[coreshadow.ValidationResult](t, rr).ParcelID)

	rr = do(t, h, http.MethodGet, "/api/shadow/history", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]model.DecisionRecord](t, rr))

	rr = do(t, h, http.MethodGet, "/api/shadow/audit", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
