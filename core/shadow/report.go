package shadow

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/store"
)

// Thresholds used by the performance report recommendations.
const (
	minAccuracyRate      = 80.0
	minMatchRate         = 0.5
	maxSignificantRate   = 20.0
	promotionMinimumRuns = 20
)

// ValidationResult summarises shadow/production pairs for one parcel.
type ValidationResult struct {
	ParcelID               string       `json:"parcel_id"`
	ShadowDecisions        int          `json:"shadow_decisions"`
	TotalComparisons       int          `json:"total_comparisons"`
	SameVehicle            int          `json:"same_vehicle"`
	SignificantDifferences int          `json:"significant_differences"`
	AverageScoreDifference float64      `json:"average_score_difference"`
	Comparisons            []Comparison `json:"comparisons,omitempty"`
}

// PerformanceReport aggregates validation over every parcel with shadow
// activity in a window.
type PerformanceReport struct {
	WindowHours               float64   `json:"window_hours"`
	GeneratedAt               time.Time `json:"generated_at"`
	Parcels                   int       `json:"parcels"`
	ShadowDecisions           int       `json:"shadow_decisions"`
	TotalComparisons          int       `json:"total_comparisons"`
	AccuracyRate              float64   `json:"accuracy_rate"`
	AverageScoreDifference    float64   `json:"average_score_difference"`
	ScoreDifferenceStdDev     float64   `json:"score_difference_std_dev"`
	SignificantDifferenceRate float64   `json:"significant_difference_rate"`
	MatchRate                 float64   `json:"match_rate"`
	Recommendations           []string  `json:"recommendations"`
}

// ValidateShadowDecisions pairs each shadow decision for parcelID made in
// the last hours with the nearest production decision within five minutes.
func (c *Comparator) ValidateShadowDecisions(ctx context.Context, parcelID string, hours float64) (ValidationResult, error) {
	since := c.now().Add(-hoursDuration(hours))
	shadowRecs, err := c.store.Find(ctx, store.DecisionFilter{ParcelID: parcelID, ShadowMode: boolPtr(true), Since: since})
	if err != nil {
		return ValidationResult{}, fmt.Errorf("load shadow decisions: %w", err)
	}
	// Production decisions slightly older than the window can still pair.
	prodRecs, err := c.store.Find(ctx, store.DecisionFilter{ParcelID: parcelID, ShadowMode: boolPtr(false), Since: since.Add(-DefaultPairWindow)})
	if err != nil {
		return ValidationResult{}, fmt.Errorf("load production decisions: %w", err)
	}
	res, _ := c.validate(parcelID, shadowRecs, prodRecs)
	return res, nil
}

func (c *Comparator) validate(parcelID string, shadowRecs, prodRecs []model.DecisionRecord) (ValidationResult, []float64) {
	threshold := c.Config().ValidationThreshold
	res := ValidationResult{ParcelID: parcelID, ShadowDecisions: len(shadowRecs)}
	diffs := make([]float64, 0, len(shadowRecs))
	for _, s := range shadowRecs {
		prod, ok := nearestWithin(s.RequestedAt, prodRecs, DefaultPairWindow)
		if !ok {
			continue
		}
		cmp := compare(s, prod, threshold)
		res.Comparisons = append(res.Comparisons, cmp)
		res.TotalComparisons++
		if !cmp.VehicleMismatch {
			res.SameVehicle++
		}
		if cmp.ScoreDifference > threshold {
			res.SignificantDifferences++
		}
		diffs = append(diffs, cmp.ScoreDifference)
	}
	if len(diffs) > 0 {
		res.AverageScoreDifference = round2(stat.Mean(diffs, nil))
	}
	return res, diffs
}

// GeneratePerformanceReport validates every parcel with shadow activity in
// the last hours and derives headline rates and recommendations.
func (c *Comparator) GeneratePerformanceReport(ctx context.Context, hours float64) (PerformanceReport, error) {
	now := c.now()
	since := now.Add(-hoursDuration(hours))
	shadowRecs, err := c.store.Find(ctx, store.DecisionFilter{ShadowMode: boolPtr(true), Since: since})
	if err != nil {
		return PerformanceReport{}, fmt.Errorf("load shadow decisions: %w", err)
	}
	prodRecs, err := c.store.Find(ctx, store.DecisionFilter{ShadowMode: boolPtr(false), Since: since.Add(-DefaultPairWindow)})
	if err != nil {
		return PerformanceReport{}, fmt.Errorf("load production decisions: %w", err)
	}

	shadowByParcel := groupByParcel(shadowRecs)
	prodByParcel := groupByParcel(prodRecs)
	parcels := make([]string, 0, len(shadowByParcel))
	for p := range shadowByParcel {
		parcels = append(parcels, p)
	}
	sort.Strings(parcels)

	rep := PerformanceReport{WindowHours: hours, GeneratedAt: now, Parcels: len(parcels), ShadowDecisions: len(shadowRecs)}
	var (
		diffs       []float64
		same, signi int
	)
	for _, p := range parcels {
		res, d := c.validate(p, shadowByParcel[p], prodByParcel[p])
		rep.TotalComparisons += res.TotalComparisons
		same += res.SameVehicle
		signi += res.SignificantDifferences
		diffs = append(diffs, d...)
	}
	if rep.TotalComparisons > 0 {
		n := float64(rep.TotalComparisons)
		rep.AccuracyRate = round2(float64(same) / n * 100)
		rep.SignificantDifferenceRate = round2(float64(signi) / n * 100)
		rep.AverageScoreDifference = round2(stat.Mean(diffs, nil))
		if len(diffs) > 1 {
			rep.ScoreDifferenceStdDev = round2(stat.StdDev(diffs, nil))
		}
	}
	if rep.ShadowDecisions > 0 {
		rep.MatchRate = round2(float64(rep.TotalComparisons) / float64(rep.ShadowDecisions))
	}
	rep.Recommendations = recommendations(rep)
	return rep, nil
}

func recommendations(rep PerformanceReport) []string {
	if rep.ShadowDecisions == 0 {
		return []string{"No shadow decisions in the window; enable shadow mode to collect comparison data."}
	}
	var out []string
	if rep.TotalComparisons > 0 && rep.AccuracyRate < minAccuracyRate {
		out = append(out, fmt.Sprintf("Vehicle agreement %.1f%% is below %.0f%%; review scoring weights before promoting shadow decisions.",
			rep.AccuracyRate, minAccuracyRate))
	}
	if rep.MatchRate < minMatchRate {
		out = append(out, "Fewer than half of shadow decisions have a production decision within 5 minutes; check that shadow and production traffic overlap.")
	}
	if rep.SignificantDifferenceRate > maxSignificantRate {
		out = append(out, fmt.Sprintf("%.1f%% of comparisons exceed the score threshold; inspect the diverging parcels.", rep.SignificantDifferenceRate))
	}
	if len(out) == 0 {
		if rep.TotalComparisons < promotionMinimumRuns {
			out = append(out, fmt.Sprintf("Shadow decisions agree with production but only %d comparisons exist; keep collecting before promotion.", rep.TotalComparisons))
		} else {
			out = append(out, "Shadow decisions agree with production; candidate for promotion.")
		}
	}
	return out
}

// History returns shadow decisions, newest first. An empty parcelID lists
// all parcels; a non-positive limit selects DefaultHistoryLimit.
func (c *Comparator) History(ctx context.Context, parcelID string, limit int) ([]model.DecisionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	recs, err := c.store.Find(ctx, store.DecisionFilter{ParcelID: parcelID, ShadowMode: boolPtr(true), Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("shadow history: %w", err)
	}
	return recs, nil
}

func groupByParcel(recs []model.DecisionRecord) map[string][]model.DecisionRecord {
	out := make(map[string][]model.DecisionRecord)
	for _, r := range recs {
		out[r.ParcelID] = append(out[r.ParcelID], r)
	}
	return out
}

func hoursDuration(h float64) time.Duration {
	if h <= 0 {
		h = 24
	}
	return time.Duration(h * float64(time.Hour))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
