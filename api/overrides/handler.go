// Package overrides exposes the override approval workflow and impact
// assessment over HTTP.
package overrides

import (
	"fmt"
	"net/http"

	"github.com/kilianp07/consolidation/api/httpx"
	"github.com/kilianp07/consolidation/auth"
	"github.com/kilianp07/consolidation/core/impact"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/override"
)

// AssessInput carries what the impact assessor needs besides the override.
type AssessInput struct {
	Request  model.DecisionRequest  `json:"request"`
	Vehicle  model.VehicleSnapshot  `json:"vehicle"`
	Affected []model.AffectedParcel `json:"affected,omitempty"`
}

// InitiateRequest is the body of POST /api/overrides. When Assess is set
// the impact assessment is attached to the new override.
type InitiateRequest struct {
	Override model.OverrideRequest `json:"override"`
	Assess   *AssessInput          `json:"assess,omitempty"`
}

// ImpactRequest is the body of POST /api/overrides/impact.
type ImpactRequest struct {
	Override model.OverrideRequest `json:"override"`
	AssessInput
}

// ApprovalRequest is the body of POST /api/overrides/{id}/approvals.
type ApprovalRequest struct {
	ApproverID string `json:"approver_id"`
	Approved   bool   `json:"approved"`
	Comments   string `json:"comments,omitempty"`
}

// ActorRequest is the body of the execute and cancel routes.
type ActorRequest struct {
	Actor string `json:"actor"`
}

type handler struct {
	svc      *override.Service
	assessor *impact.Assessor
}

// Register mounts the override routes on mux. assessor may be nil, in
// which case impact requests fail.
func Register(mux *http.ServeMux, svc *override.Service, assessor *impact.Assessor) {
	h := handler{svc: svc, assessor: assessor}
	mux.HandleFunc("POST /api/overrides", h.initiate)
	mux.HandleFunc("POST /api/overrides/impact", h.impact)
	mux.HandleFunc("GET /api/overrides/pending", h.pending)
	mux.HandleFunc("GET /api/overrides/{id}", h.get)
	mux.HandleFunc("POST /api/overrides/{id}/approvals", h.approve)
	mux.HandleFunc("POST /api/overrides/{id}/execute", h.execute)
	mux.HandleFunc("POST /api/overrides/{id}/cancel", h.cancel)
	mux.HandleFunc("GET /api/decisions/{id}/overrides", h.forDecision)
}

func (h handler) initiate(w http.ResponseWriter, r *http.Request) {
	var body InitiateRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	body.Override.RequestedBy = httpx.Actor(r, body.Override.RequestedBy)
	var opts []override.InitiateOption
	if body.Assess != nil {
		a, err := h.assess(r, body.Override, *body.Assess)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		opts = append(opts, override.WithImpact(&a))
	}
	resp, err := h.svc.Initiate(r.Context(), body.Override, opts...)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h handler) impact(w http.ResponseWriter, r *http.Request) {
	var body ImpactRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	a, err := h.assess(r, body.Override, body.AssessInput)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h handler) assess(r *http.Request, o model.OverrideRequest, in AssessInput) (model.OverrideImpactAssessment, error) {
	if h.assessor == nil {
		return model.OverrideImpactAssessment{}, fmt.Errorf("impact assessment is not configured")
	}
	a, err := h.assessor.Assess(r.Context(), o, in.Request, in.Vehicle, in.Affected)
	if err != nil {
		return model.OverrideImpactAssessment{}, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err)
	}
	return a, nil
}

func (h handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h handler) pending(w http.ResponseWriter, r *http.Request) {
	role := model.ApproverRole(r.URL.Query().Get("role"))
	if role == "" {
		role = callerRole(r)
	}
	recs, err := h.svc.Pending(r.Context(), role)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if recs == nil {
		recs = []model.OverrideRecord{}
	}
	httpx.JSON(w, http.StatusOK, recs)
}

func (h handler) forDecision(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.ForDecision(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if recs == nil {
		recs = []model.OverrideRecord{}
	}
	httpx.JSON(w, http.StatusOK, recs)
}

func (h handler) approve(w http.ResponseWriter, r *http.Request) {
	var body ApprovalRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	resp, err := h.svc.ProcessApproval(r.Context(), r.PathValue("id"), httpx.Actor(r, body.ApproverID), body.Approved, body.Comments)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h handler) execute(w http.ResponseWriter, r *http.Request) {
	var body ActorRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	rec, err := h.svc.Execute(r.Context(), r.PathValue("id"), httpx.Actor(r, body.Actor))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h handler) cancel(w http.ResponseWriter, r *http.Request) {
	var body ActorRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	rec, err := h.svc.Cancel(r.Context(), r.PathValue("id"), httpx.Actor(r, body.Actor))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

// callerRole picks the approver role of the authenticated caller, admin
// first, and falls back to dispatcher.
func callerRole(r *http.Request) model.ApproverRole {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		for _, role := range []model.ApproverRole{model.RoleAdmin, model.RoleDispatcher} {
			if p.HasRole(string(role)) {
				return role
			}
		}
	}
	return model.RoleDispatcher
}
