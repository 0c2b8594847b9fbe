package shadow

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/logger"
	"github.com/kilianp07/consolidation/core/metrics"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/monitoring"
	"github.com/kilianp07/consolidation/core/store"
)

const writeTimeout = 5 * time.Second

// AuditSink receives every persisted shadow decision.
type AuditSink interface {
	Append(rec model.DecisionRecord) error
}

// Comparison is the outcome of comparing a shadow and a production decision.
type Comparison struct {
	ShadowDecisionID     string  `json:"shadow_decision_id"`
	ProductionDecisionID string  `json:"production_decision_id"`
	ShadowVehicleID      string  `json:"shadow_vehicle_id,omitempty"`
	ProductionVehicleID  string  `json:"production_vehicle_id,omitempty"`
	ScoreDifference      float64 `json:"score_difference"`
	VehicleMismatch      bool    `json:"vehicle_mismatch"`
	RequiresReview       bool    `json:"requires_review"`
}

// Comparator logs shadow decisions asynchronously and compares them with
// production decisions.
type Comparator struct {
	mu  sync.RWMutex
	cfg Config

	store    store.DecisionStore
	audit    AuditSink
	notifier events.Notifier
	metrics  metrics.MetricsSink
	log      logger.Logger
	now      func() time.Time

	qmu      sync.RWMutex
	queue    chan model.DecisionRecord
	compareQ chan model.DecisionRecord
	closed   bool
	dropped  atomic.Int64
	skipped  atomic.Int64
	wg       sync.WaitGroup
}

// Option customises a Comparator.
type Option func(*Comparator)

func WithLogger(l logger.Logger) Option        { return func(c *Comparator) { c.log = logger.OrNop(l) } }
func WithNotifier(n events.Notifier) Option    { return func(c *Comparator) { c.notifier = n } }
func WithMetrics(m metrics.MetricsSink) Option { return func(c *Comparator) { c.metrics = m } }
func WithAudit(a AuditSink) Option             { return func(c *Comparator) { c.audit = a } }
func WithClock(now func() time.Time) Option    { return func(c *Comparator) { c.now = now } }

// NewComparator starts the background writer and comparison worker. Call
// Close to drain them.
func NewComparator(cfg Config, st store.DecisionStore, opts ...Option) *Comparator {
	cfg.SetDefaults()
	c := &Comparator{
		cfg:      cfg,
		store:    st,
		notifier: events.Nop{},
		metrics:  metrics.NopSink{},
		log:      logger.Nop{},
		now:      time.Now,
		queue:    make(chan model.DecisionRecord, cfg.QueueSize),
		compareQ: make(chan model.DecisionRecord, cfg.QueueSize),
	}
	for _, o := range opts {
		o(c)
	}
	c.wg.Add(2)
	go c.run()
	go c.runCompare()
	return c
}

// Config returns the current configuration.
func (c *Comparator) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetConfig replaces the runtime flags and threshold. QueueSize is ignored.
func (c *Comparator) SetConfig(cfg Config) (Config, error) {
	if cfg.ValidationThreshold == 0 {
		cfg.ValidationThreshold = DefaultValidationThreshold
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	c.mu.Lock()
	cfg.QueueSize = c.cfg.QueueSize
	c.cfg = cfg
	c.mu.Unlock()
	c.log.Infow("shadow config updated", map[string]any{
		"enabled":              cfg.Enabled,
		"comparison_enabled":   cfg.ComparisonEnabled,
		"log_all_decisions":    cfg.LogAllDecisions,
		"validation_threshold": cfg.ValidationThreshold,
	})
	return cfg, nil
}

// Dropped returns the number of shadow decisions discarded because the
// queue was full or closed.
func (c *Comparator) Dropped() int64 { return c.dropped.Load() }

// SkippedComparisons returns the number of production decisions not
// compared because the comparison queue was full.
func (c *Comparator) SkippedComparisons() int64 { return c.skipped.Load() }

// LogShadowDecision queues rec for persistence when shadow logging is on.
// It never blocks and never fails the caller.
func (c *Comparator) LogShadowDecision(ctx context.Context, rec model.DecisionRecord) {
	if !c.Config().logging() {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.ShadowMode = true
	rec.Executed = false
	rec.ExecutedAt = nil

	c.qmu.RLock()
	defer c.qmu.RUnlock()
	if c.closed {
		c.drop(ctx, rec, "closed")
		return
	}
	select {
	case c.queue <- rec:
	default:
		c.drop(ctx, rec, "queue full")
	}
}

func (c *Comparator) drop(ctx context.Context, rec model.DecisionRecord, reason string) {
	n := c.dropped.Add(1)
	c.log.Warnw("shadow decision dropped", map[string]any{
		"decision_id": rec.ID,
		"parcel_id":   rec.ParcelID,
		"reason":      reason,
		"dropped":     n,
	})
	c.recordShadow(metrics.ShadowMetric{ParcelID: rec.ParcelID, Outcome: string(events.ShadowDropped), Time: c.now()})
	events.Dispatch(ctx, c.notifier, c.log, events.ShadowEvent{
		DecisionID: rec.ID, ParcelID: rec.ParcelID, Action: events.ShadowDropped, Err: reason, At: c.now(),
	})
}

func (c *Comparator) run() {
	defer c.wg.Done()
	for rec := range c.queue {
		c.persist(rec)
	}
}

func (c *Comparator) persist(rec model.DecisionRecord) {
	defer c.recoverPanic("persist")
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	ev := events.ShadowEvent{DecisionID: rec.ID, ParcelID: rec.ParcelID, Action: events.ShadowLogged}
	if _, err := c.store.Create(ctx, rec); err != nil {
		c.log.Errorw("shadow decision persistence failed", map[string]any{
			"decision_id": rec.ID,
			"parcel_id":   rec.ParcelID,
			"error":       err.Error(),
		})
		ev.Action = events.ShadowFailed
		ev.Err = err.Error()
	} else if c.audit != nil {
		if err := c.audit.Append(rec); err != nil {
			c.log.Warnf("shadow audit append: %v", err)
		}
	}
	ev.At = c.now()
	c.recordShadow(metrics.ShadowMetric{ParcelID: rec.ParcelID, Outcome: string(ev.Action), Time: ev.At})
	events.Dispatch(ctx, c.notifier, c.log, ev)
}

// Close stops accepting decisions and waits for queued ones to be written.
func (c *Comparator) Close() {
	c.qmu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
		close(c.compareQ)
	}
	c.qmu.Unlock()
	c.wg.Wait()
}

// CompareDecisions measures the gap between a shadow and a production
// decision.
func (c *Comparator) CompareDecisions(shadowRec, production model.DecisionRecord) Comparison {
	threshold := c.Config().ValidationThreshold
	return compare(shadowRec, production, threshold)
}

func compare(shadowRec, production model.DecisionRecord, threshold float64) Comparison {
	diff := math.Abs(shadowRec.Score - production.Score)
	mismatch := shadowRec.VehicleID() != production.VehicleID()
	return Comparison{
		ShadowDecisionID:     shadowRec.ID,
		ProductionDecisionID: production.ID,
		ShadowVehicleID:      shadowRec.VehicleID(),
		ProductionVehicleID:  production.VehicleID(),
		ScoreDifference:      diff,
		VehicleMismatch:      mismatch,
		RequiresReview:       diff > threshold || mismatch,
	}
}

// ObserveProduction queues a new production decision for comparison with
// the closest shadow decision for the same parcel when comparison is
// enabled. It never blocks; decisions arriving while the queue is full are
// skipped.
func (c *Comparator) ObserveProduction(_ context.Context, production model.DecisionRecord) {
	if !c.Config().ComparisonEnabled {
		return
	}
	c.qmu.RLock()
	defer c.qmu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.compareQ <- production:
	default:
		n := c.skipped.Add(1)
		c.log.Debugw("shadow comparison skipped", map[string]any{
			"decision_id": production.ID,
			"parcel_id":   production.ParcelID,
			"skipped":     n,
		})
	}
}

func (c *Comparator) runCompare() {
	defer c.wg.Done()
	for production := range c.compareQ {
		c.compareProduction(production)
	}
}

func (c *Comparator) compareProduction(production model.DecisionRecord) {
	defer c.recoverPanic("compare")
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	shadowRecs, err := c.store.Find(ctx, store.DecisionFilter{
		ParcelID:   production.ParcelID,
		ShadowMode: boolPtr(true),
		Since:      production.RequestedAt.Add(-DefaultPairWindow),
		Until:      production.RequestedAt.Add(DefaultPairWindow),
	})
	if err != nil {
		c.log.Warnf("shadow lookup for parcel %s: %v", production.ParcelID, err)
		return
	}
	nearest, ok := nearestWithin(production.RequestedAt, shadowRecs, DefaultPairWindow)
	if !ok {
		return
	}
	cmp := compare(nearest, production, c.Config().ValidationThreshold)
	c.recordShadow(metrics.ShadowMetric{
		ParcelID:        production.ParcelID,
		Outcome:         metrics.OutcomeCompared,
		ScoreDifference: cmp.ScoreDifference,
		VehicleMismatch: cmp.VehicleMismatch,
		RequiresReview:  cmp.RequiresReview,
		Time:            c.now(),
	})
	if cmp.RequiresReview {
		c.log.Warnw("shadow decision diverges from production", map[string]any{
			"parcel_id":        production.ParcelID,
			"score_difference": cmp.ScoreDifference,
			"vehicle_mismatch": cmp.VehicleMismatch,
			"shadow_id":        cmp.ShadowDecisionID,
			"production_id":    cmp.ProductionDecisionID,
		})
	}
}

func (c *Comparator) recordShadow(ev metrics.ShadowMetric) {
	if err := metrics.RecordShadow(c.metrics, ev); err != nil {
		c.log.Debugf("record shadow metric: %v", err)
	}
}

// nearestWithin returns the record whose RequestedAt is closest to at,
// provided it lies within window.
func nearestWithin(at time.Time, recs []model.DecisionRecord, window time.Duration) (model.DecisionRecord, bool) {
	var (
		best  model.DecisionRecord
		found bool
		gap   time.Duration
	)
	for _, r := range recs {
		d := r.RequestedAt.Sub(at)
		if d < 0 {
			d = -d
		}
		if d > window {
			continue
		}
		if !found || d < gap {
			best, gap, found = r, d, true
		}
	}
	return best, found
}

// recoverPanic keeps a failing background task from taking the process
// down. It must be deferred directly.
func (c *Comparator) recoverPanic(op string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("shadow %s panic: %v", op, r)
		monitoring.CaptureException(err, map[string]string{"component": "shadow"})
		c.log.Errorf("%v", err)
	}
}

func boolPtr(b bool) *bool { return &b }
