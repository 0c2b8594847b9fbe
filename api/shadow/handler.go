// Package shadow exposes shadow mode configuration, validation and reports
// over HTTP.
package shadow

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/consolidation/api/httpx"
	"github.com/kilianp07/consolidation/core/model"
	coreshadow "github.com/kilianp07/consolidation/core/shadow"
	"github.com/kilianp07/consolidation/infra/shadowlog"
)

// AuditQuerier reads the shadow audit trail.
type AuditQuerier interface {
	Query(parcelID string, since time.Time) ([]shadowlog.Entry, error)
}

type handler struct {
	cmp   *coreshadow.Comparator
	audit AuditQuerier
}

// Register mounts the shadow routes on mux. audit may be nil when no audit
// file is configured.
func Register(mux *http.ServeMux, cmp *coreshadow.Comparator, audit AuditQuerier) {
	h := handler{cmp: cmp, audit: audit}
	mux.HandleFunc("GET /api/shadow/config", h.getConfig)
	mux.HandleFunc("PUT /api/shadow/config", h.setConfig)
	mux.HandleFunc("GET /api/shadow/report", h.report)
	mux.HandleFunc("GET /api/shadow/parcels/{parcel_id}/validation", h.validate)
	mux.HandleFunc("GET /api/shadow/history", h.history)
	mux.HandleFunc("GET /api/shadow/audit", h.auditTrail)
}

func (h handler) getConfig(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, h.cmp.Config())
}

func (h handler) setConfig(w http.ResponseWriter, r *http.Request) {
	var cfg coreshadow.Config
	if err := httpx.Decode(r, &cfg); err != nil {
		httpx.Error(w, err)
		return
	}
	got, err := h.cmp.SetConfig(cfg)
	if err != nil {
		httpx.Error(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	httpx.JSON(w, http.StatusOK, got)
}

func (h handler) report(w http.ResponseWriter, r *http.Request) {
	hours, err := httpx.Float(r, "hours", 24)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	rep, err := h.cmp.GeneratePerformanceReport(r.Context(), hours)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

func (h handler) validate(w http.ResponseWriter, r *http.Request) {
	hours, err := httpx.Float(r, "hours", 24)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	res, err := h.cmp.ValidateShadowDecisions(r.Context(), r.PathValue("parcel_id"), hours)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h handler) history(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.Int(r, "limit", 0)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	recs, err := h.cmp.History(r.Context(), r.URL.Query().Get("parcel_id"), limit)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if recs == nil {
		recs = []model.DecisionRecord{}
	}
	httpx.JSON(w, http.StatusOK, recs)
}

func (h handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		http.Error(w, "shadow audit is not configured", http.StatusNotFound)
		return
	}
	since, err := httpx.Time(r, "since")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	entries, err := h.audit.Query(r.URL.Query().Get("parcel_id"), since)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if entries == nil {
		entries = []shadowlog.Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}
