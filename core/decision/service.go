package decision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/consolidation/core/constraint"
	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/explain"
	"github.com/kilianp07/consolidation/core/logger"
	"github.com/kilianp07/consolidation/core/metrics"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/monitoring"
	"github.com/kilianp07/consolidation/core/route"
	"github.com/kilianp07/consolidation/core/scoring"
	"github.com/kilianp07/consolidation/core/store"
)

var (
	ErrInvalidRequest = errors.New("decision: invalid request")
	ErrNotFound       = errors.New("decision: not found")
	ErrShadowDecision = errors.New("decision: shadow decisions cannot be executed or overridden")
	ErrInternal       = errors.New("decision: internal failure")
)

// Config tunes the orchestrator.
type Config struct {
	MinAcceptableScore float64 `json:"min_acceptable_score"`
	Parallelism        int     `json:"parallelism"`
	SpeedKmh           float64 `json:"speed_kmh"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.MinAcceptableScore <= 0 {
		c.MinAcceptableScore = scoring.DefaultMinAcceptableScore
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 8
	}
	if c.SpeedKmh <= 0 {
		c.SpeedKmh = route.DefaultSpeedKmh
	}
}

// Validate checks the ranges.
func (c Config) Validate() error {
	if c.MinAcceptableScore > 100 {
		return fmt.Errorf("min_acceptable_score %.1f above 100", c.MinAcceptableScore)
	}
	return nil
}

// ShadowSink receives decisions produced in shadow mode and observes
// production decisions for comparison. Both calls must not block.
type ShadowSink interface {
	LogShadowDecision(ctx context.Context, rec model.DecisionRecord)
	ObserveProduction(ctx context.Context, rec model.DecisionRecord)
}

// CandidateSummary reports how one vehicle fared.
type CandidateSummary struct {
	VehicleID         string    `json:"vehicle_id"`
	Score             float64   `json:"score"`
	Eligible          bool      `json:"eligible"`
	DeviationKm       float64   `json:"deviation_km"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
	Violations        []string  `json:"violations,omitempty"`
}

// Response is returned by Evaluate.
type Response struct {
	Decision   model.DecisionRecord `json:"decision"`
	Candidates []CandidateSummary   `json:"candidates"`
	Skipped    []string             `json:"skipped_vehicles,omitempty"`
}

// Service runs the consolidation pipeline and owns decision records.
type Service struct {
	cfg       Config
	estimator route.Estimator
	evaluator constraint.Evaluator
	engine    scoring.Engine
	builder   explain.Builder
	store     store.DecisionStore
	shadow    ShadowSink
	notifier  events.Notifier
	metrics   metrics.MetricsSink
	log       logger.Logger
	now       func() time.Time
	mu        sync.RWMutex
}

// Option customises a Service.
type Option func(*Service)

func WithLogger(l logger.Logger) Option        { return func(s *Service) { s.log = logger.OrNop(l) } }
func WithNotifier(n events.Notifier) Option    { return func(s *Service) { s.notifier = n } }
func WithMetrics(m metrics.MetricsSink) Option { return func(s *Service) { s.metrics = m } }
func WithClock(now func() time.Time) Option    { return func(s *Service) { s.now = now } }
func WithShadowSink(sink ShadowSink) Option    { return func(s *Service) { s.shadow = sink } }
func WithConstraints(c constraint.Config) Option {
	return func(s *Service) { s.evaluator = constraint.NewEvaluator(c) }
}

// NewService wires the pipeline around st.
func NewService(cfg Config, st store.DecisionStore, opts ...Option) *Service {
	cfg.SetDefaults()
	s := &Service{
		cfg:       cfg,
		estimator: route.Estimator{SpeedKmh: cfg.SpeedKmh},
		evaluator: constraint.NewEvaluator(constraint.DefaultConfig()),
		engine:    scoring.NewEngine(cfg.MinAcceptableScore),
		builder:   explain.NewBuilder(cfg.MinAcceptableScore),
		store:     st,
		notifier:  events.Nop{},
		metrics:   metrics.NopSink{},
		log:       logger.Nop{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetShadowSink installs the shadow sink after construction.
func (s *Service) SetShadowSink(sink ShadowSink) {
	s.mu.Lock()
	s.shadow = sink
	s.mu.Unlock()
}

func (s *Service) shadowSink() ShadowSink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shadow
}

// Evaluate scores every candidate and produces a new decision record.
// Shadow decisions are handed to the shadow sink instead of being stored
// synchronously.
func (s *Service) Evaluate(ctx context.Context, req model.DecisionRequest, vehicles []model.VehicleSnapshot, shadowMode bool) (resp Response, err error) {
	if err := req.Validate(); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInternal, r)
			monitoring.CaptureException(err, map[string]string{"component": "decision", "parcel_id": req.ParcelID})
			s.log.Errorf("evaluation panic for parcel %s: %v", req.ParcelID, r)
		}
	}()

	valid, skipped := s.partitionValid(vehicles)
	candidates, err := s.evaluateCandidates(ctx, req, valid, start)
	if err != nil {
		return Response{}, s.internal(req, err)
	}
	ranked := s.engine.Rank(req, candidates)

	var selected *scoring.Ranked
	newDispatch := true
	if len(ranked) > 0 && ranked[0].Eligible() && !s.engine.ShouldRecommendNewDispatch(ranked) {
		selected = &ranked[0]
		newDispatch = false
	}

	rec := model.DecisionRecord{
		ID:                  uuid.NewString(),
		ParcelID:            req.ParcelID,
		RequestedAt:         start,
		RequiresNewDispatch: newDispatch,
		ShadowMode:          shadowMode,
		Explanation: s.builder.Build(explain.Input{
			Request:             req,
			Ranked:              ranked,
			Selected:            selected,
			RequiresNewDispatch: newDispatch,
		}),
	}
	if selected != nil {
		id := selected.Vehicle.ID
		rec.RecommendedVehicleID = &id
		rec.Score = selected.Score
	} else if len(ranked) > 0 {
		rec.Score = ranked[0].Score
	}

	if shadowMode {
		if sink := s.shadowSink(); sink != nil {
			sink.LogShadowDecision(ctx, rec)
		}
	} else {
		rec, err = s.store.Create(ctx, rec)
		if err != nil {
			return Response{}, s.internal(req, fmt.Errorf("persist decision: %w", err))
		}
		events.Dispatch(ctx, s.notifier, s.log, decisionEvent(rec, events.DecisionCreated, start))
		if sink := s.shadowSink(); sink != nil {
			sink.ObserveProduction(ctx, rec)
		}
	}

	s.observe(rec, ranked, s.now().Sub(start))
	s.log.Infow("decision evaluated", map[string]any{
		"decision_id":  rec.ID,
		"parcel_id":    rec.ParcelID,
		"vehicle_id":   rec.VehicleID(),
		"score":        rec.Score,
		"new_dispatch": rec.RequiresNewDispatch,
		"shadow":       shadowMode,
		"candidates":   len(ranked),
	})
	return Response{Decision: rec, Candidates: summarize(ranked), Skipped: skipped}, nil
}

func (s *Service) partitionValid(vehicles []model.VehicleSnapshot) ([]model.VehicleSnapshot, []string) {
	valid := make([]model.VehicleSnapshot, 0, len(vehicles))
	var skipped []string
	for _, v := range vehicles {
		if err := v.Validate(); err != nil {
			s.log.Warnf("skipping vehicle %s: %v", v.ID, err)
			invalidVehicles.Inc()
			skipped = append(skipped, v.ID)
			continue
		}
		valid = append(valid, v)
	}
	return valid, skipped
}

// evaluateCandidates runs route estimation and constraint checks per
// vehicle concurrently, bounded by cfg.Parallelism.
func (s *Service) evaluateCandidates(ctx context.Context, req model.DecisionRequest, vehicles []model.VehicleSnapshot, ref time.Time) ([]scoring.Candidate, error) {
	out := make([]scoring.Candidate, len(vehicles))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, s.cfg.Parallelism)
	for i, v := range vehicles {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			firstErr = err
			mu.Unlock()
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v model.VehicleSnapshot) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("vehicle %s: %v", v.ID, r)
					}
					mu.Unlock()
				}
			}()
			est := s.estimator.Estimate(v.StopLocations(), req.Pickup, req.Delivery, ref)
			out[i] = scoring.Candidate{
				Vehicle:  v,
				Estimate: est,
				Hard:     s.evaluator.EvaluateHard(v, req, est),
				Soft:     s.evaluator.EvaluateSoft(v, req, est),
			}
		}(i, v)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (s *Service) internal(req model.DecisionRequest, err error) error {
	wrapped := fmt.Errorf("%w: %v", ErrInternal, err)
	monitoring.CaptureException(err, map[string]string{"component": "decision", "parcel_id": req.ParcelID})
	s.log.Errorf("evaluation failed for parcel %s: %v", req.ParcelID, err)
	return wrapped
}

func (s *Service) observe(rec model.DecisionRecord, ranked []scoring.Ranked, took time.Duration) {
	mode := modeLabel(rec.ShadowMode)
	evaluationLatency.WithLabelValues(mode).Observe(took.Seconds())
	eligible := 0
	for _, r := range ranked {
		if r.Eligible() {
			eligible++
		}
	}
	vehiclesEvaluated.WithLabelValues("true").Add(float64(eligible))
	vehiclesEvaluated.WithLabelValues("false").Add(float64(len(ranked) - eligible))
	if rec.RequiresNewDispatch {
		newDispatchTotal.WithLabelValues(mode).Inc()
	}
	if len(ranked) > 0 {
		decisionScore.Observe(ranked[0].Score)
	}
	if err := s.metrics.RecordDecision(metrics.DecisionMetric{
		DecisionID:  rec.ID,
		ParcelID:    rec.ParcelID,
		VehicleID:   rec.VehicleID(),
		Score:       rec.Score,
		Candidates:  len(ranked),
		Eligible:    eligible,
		NewDispatch: rec.RequiresNewDispatch,
		Shadow:      rec.ShadowMode,
		Duration:    took,
		Time:        rec.RequestedAt,
	}); err != nil {
		s.log.Warnf("record decision metric: %v", err)
	}
}

func summarize(ranked []scoring.Ranked) []CandidateSummary {
	out := make([]CandidateSummary, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, CandidateSummary{
			VehicleID:         r.Vehicle.ID,
			Score:             r.Score,
			Eligible:          r.Eligible(),
			DeviationKm:       r.Estimate.DeviationKm,
			EstimatedDelivery: r.Estimate.EstimatedDelivery,
			Violations:        constraint.Violations(r.Hard),
		})
	}
	return out
}

func decisionEvent(rec model.DecisionRecord, action events.DecisionAction, at time.Time) events.DecisionEvent {
	return events.DecisionEvent{
		DecisionID:          rec.ID,
		ParcelID:            rec.ParcelID,
		VehicleID:           rec.VehicleID(),
		RequiresNewDispatch: rec.RequiresNewDispatch,
		Score:               rec.Score,
		Action:              action,
		At:                  at,
	}
}
