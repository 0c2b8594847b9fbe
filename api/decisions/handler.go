// Package decisions exposes the consolidation pipeline and decision
// records over HTTP.
package decisions

import (
	"net/http"

	"github.com/kilianp07/consolidation/api/httpx"
	"github.com/kilianp07/consolidation/core/decision"
	"github.com/kilianp07/consolidation/core/model"
)

// EvaluateRequest is the body of POST /api/decisions/evaluate.
type EvaluateRequest struct {
	Request    model.DecisionRequest   `json:"request"`
	Vehicles   []model.VehicleSnapshot `json:"vehicles"`
	ShadowMode bool                    `json:"shadow_mode"`
}

// ManualOverrideRequest is the body of POST /api/decisions/{id}/manual-override.
type ManualOverrideRequest struct {
	Reason string `json:"reason"`
	UserID string `json:"user_id"`
}

type handler struct {
	svc *decision.Service
}

// Register mounts the decision routes on mux.
func Register(mux *http.ServeMux, svc *decision.Service) {
	h := handler{svc: svc}
	mux.HandleFunc("POST /api/decisions/evaluate", h.evaluate)
	mux.HandleFunc("GET /api/decisions/{id}", h.get)
	mux.HandleFunc("POST /api/decisions/{id}/execute", h.execute)
	mux.HandleFunc("POST /api/decisions/{id}/manual-override", h.manualOverride)
	mux.HandleFunc("GET /api/parcels/{parcel_id}/decisions", h.history)
}

func (h handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var body EvaluateRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	resp, err := h.svc.Evaluate(r.Context(), body.Request, body.Vehicles, body.ShadowMode)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h handler) history(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.History(r.Context(), r.PathValue("parcel_id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if recs == nil {
		recs = []model.DecisionRecord{}
	}
	httpx.JSON(w, http.StatusOK, recs)
}

func (h handler) execute(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.MarkExecuted(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h handler) manualOverride(w http.ResponseWriter, r *http.Request) {
	var body ManualOverrideRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	rec, err := h.svc.RecordManualOverride(r.Context(), r.PathValue("id"), body.Reason, httpx.Actor(r, body.UserID))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}
