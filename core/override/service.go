package override

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/logger"
	"github.com/kilianp07/consolidation/core/metrics"
	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/store"
)

var (
	ErrInvalidRequest   = errors.New("override: invalid request")
	ErrNotFound         = errors.New("override: not found")
	ErrDecisionNotFound = errors.New("override: decision not found")
	ErrNotPending       = errors.New("override: not pending")
	ErrExpired          = errors.New("override: expired")
	ErrNoMatchingStep   = errors.New("override: no pending approval step for this approver")
	ErrNotExecutable    = errors.New("override: not executable")
	ErrAlreadyExecuted  = errors.New("override: already executed")
)

// DecisionReader looks up the decision an override targets.
type DecisionReader interface {
	Get(ctx context.Context, id string) (model.DecisionRecord, error)
}

// DecisionLinker records an executed override on its decision.
type DecisionLinker interface {
	LinkOverride(ctx context.Context, decisionID string, o model.OverrideRecord) error
}

// Response is returned by Initiate and ProcessApproval.
type Response struct {
	Override         model.OverrideRecord `json:"override"`
	RequiresApproval bool                 `json:"requires_approval"`
	NextApproverRole model.ApproverRole   `json:"next_approver_role,omitempty"`
	Message          string               `json:"message"`
}

// Service runs the override approval workflow.
type Service struct {
	store     store.OverrideStore
	locker    store.Locker
	policies  Policies
	decisions DecisionReader
	linker    DecisionLinker
	notifier  events.Notifier
	metrics   metrics.MetricsSink
	log       logger.Logger
	now       func() time.Time
	newID     func() string
}

// Option customises a Service.
type Option func(*Service)

func WithLocker(l store.Locker) Option           { return func(s *Service) { s.locker = l } }
func WithPolicies(p Policies) Option             { return func(s *Service) { s.policies = p } }
func WithDecisionReader(r DecisionReader) Option { return func(s *Service) { s.decisions = r } }
func WithDecisionLinker(l DecisionLinker) Option { return func(s *Service) { s.linker = l } }
func WithNotifier(n events.Notifier) Option      { return func(s *Service) { s.notifier = n } }
func WithMetrics(m metrics.MetricsSink) Option   { return func(s *Service) { s.metrics = m } }
func WithLogger(l logger.Logger) Option          { return func(s *Service) { s.log = logger.OrNop(l) } }
func WithClock(now func() time.Time) Option      { return func(s *Service) { s.now = now } }

// NewService returns an override service backed by st. Without a locker
// approvals are serialised per override within this process only.
func NewService(st store.OverrideStore, opts ...Option) *Service {
	s := &Service{
		store:    st,
		locker:   store.NewKeyedMutex(),
		policies: DefaultPolicies(),
		notifier: events.Nop{},
		metrics:  metrics.NopSink{},
		log:      logger.Nop{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// InitiateOption adjusts a new override.
type InitiateOption func(*model.OverrideRecord)

// WithImpact attaches an impact assessment to the override.
func WithImpact(a *model.OverrideImpactAssessment) InitiateOption {
	return func(o *model.OverrideRecord) { o.Impact = a }
}

// Initiate opens an override with the approval chain of its effective risk
// level.
func (s *Service) Initiate(ctx context.Context, req model.OverrideRequest, opts ...InitiateOption) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if s.decisions != nil {
		d, err := s.decisions.Get(ctx, req.DecisionID)
		if err != nil {
			return Response{}, fmt.Errorf("%w: %s: %v", ErrDecisionNotFound, req.DecisionID, err)
		}
		if req.ParcelID == "" {
			req.ParcelID = d.ParcelID
		}
	}

	now := s.now()
	effective := EffectiveRiskLevel(req.RiskLevel, req.BypassesSLA)
	policy := s.policies.For(effective)
	rec := model.OverrideRecord{
		ID:                 s.newID(),
		DecisionID:         req.DecisionID,
		ParcelID:           req.ParcelID,
		RequestedVehicleID: req.RequestedVehicleID,
		Reason:             req.Reason,
		Justification:      req.Justification,
		RequestedBy:        req.RequestedBy,
		BypassesSLA:        req.BypassesSLA,
		RiskLevel:          req.RiskLevel,
		EffectiveRiskLevel: effective,
		Status:             model.OverridePending,
		ApprovalChain:      s.policies.Chain(effective, s.newID),
		ExpiresAt:          now.Add(policy.Timeout),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for _, o := range opts {
		o(&rec)
	}
	rec, err := s.store.Create(ctx, rec)
	if err != nil {
		return Response{}, fmt.Errorf("create override: %w", err)
	}

	s.log.Infow("override initiated", map[string]any{
		"override_id":    rec.ID,
		"decision_id":    rec.DecisionID,
		"risk_level":     rec.RiskLevel.String(),
		"effective_risk": effective.String(),
		"steps":          len(rec.ApprovalChain),
		"expires_at":     rec.ExpiresAt,
	})
	s.emit(ctx, rec, events.OverrideInitiated, req.RequestedBy)
	next := nextRole(rec)
	if next != "" {
		s.emitNext(ctx, rec, next)
	}
	return Response{
		Override:         rec,
		RequiresApproval: next != "",
		NextApproverRole: next,
		Message:          fmt.Sprintf("override requires %d approval(s) at %s risk", len(rec.ApprovalChain), effective),
	}, nil
}

// ProcessApproval records one approver's verdict on the earliest pending
// step they may act on. A rejection ends the workflow immediately.
func (s *Service) ProcessApproval(ctx context.Context, id, approverID string, approved bool, comments string) (Response, error) {
	if approverID == "" {
		return Response{}, fmt.Errorf("%w: approver id is required", ErrInvalidRequest)
	}
	unlock, err := s.locker.Lock(ctx, lockKey(id))
	if err != nil {
		return Response{}, fmt.Errorf("lock override %s: %w", id, err)
	}
	defer unlock()

	var (
		out     model.OverrideRecord
		expired bool
	)
	err = store.RetryOnConflict(ctx, store.DefaultAttempts, func(ctx context.Context) error {
		expired = false
		rec, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status != model.OverridePending {
			return fmt.Errorf("%w: status %s", ErrNotPending, rec.Status)
		}
		now := s.now()
		if model.IsExpired(rec, now) {
			rec.Status = model.OverrideExpired
			rec.UpdatedAt = now
			out, err = s.store.Update(ctx, rec)
			expired = err == nil
			return err
		}

		idx := matchingStep(rec.ApprovalChain, approverID)
		if idx < 0 {
			return ErrNoMatchingStep
		}
		chain := model.CloneChain(rec.ApprovalChain)
		step := &chain[idx]
		step.ApproverID = approverID
		step.Comments = comments
		step.ActedAt = &now
		if approved {
			step.Status = model.StepApproved
		} else {
			step.Status = model.StepRejected
		}
		rec.ApprovalChain = chain

		switch {
		case !approved:
			rec.Status = model.OverrideRejected
			rec.RejectedBy = approverID
			rec.RejectedAt = &now
		case allRequiredApproved(chain):
			rec.Status = model.OverrideApproved
			rec.ApprovedBy = approverID
			rec.ApprovedAt = &now
		}
		rec.UpdatedAt = now
		out, err = s.store.Update(ctx, rec)
		return err
	})
	if err != nil {
		return Response{}, err
	}
	if expired {
		s.emit(ctx, out, events.OverrideExpired, approverID)
		return Response{}, fmt.Errorf("%w: %s expired at %s", ErrExpired, id, out.ExpiresAt.Format(time.RFC3339))
	}

	resp := Response{Override: out}
	switch out.Status {
	case model.OverrideRejected:
		resp.Message = fmt.Sprintf("override rejected by %s", approverID)
		s.emit(ctx, out, events.OverrideRejected, approverID)
	case model.OverrideApproved:
		resp.Message = "override approved"
		s.emit(ctx, out, events.OverrideApproved, approverID)
	default:
		resp.RequiresApproval = true
		resp.NextApproverRole = nextRole(out)
		resp.Message = fmt.Sprintf("approval recorded, %d step(s) remaining", pendingSteps(out.ApprovalChain))
		if resp.NextApproverRole != "" {
			s.emitNext(ctx, out, resp.NextApproverRole)
		}
	}
	s.log.Infow("override approval processed", map[string]any{
		"override_id": out.ID,
		"approver":    approverID,
		"approved":    approved,
		"status":      string(out.Status),
	})
	return resp, nil
}

// Execute marks an approved override as carried out and links it to its
// decision. Linking failures are logged only.
func (s *Service) Execute(ctx context.Context, id, executedBy string) (model.OverrideRecord, error) {
	if executedBy == "" {
		return model.OverrideRecord{}, fmt.Errorf("%w: executed_by is required", ErrInvalidRequest)
	}
	unlock, err := s.locker.Lock(ctx, lockKey(id))
	if err != nil {
		return model.OverrideRecord{}, fmt.Errorf("lock override %s: %w", id, err)
	}
	defer unlock()

	var out model.OverrideRecord
	err = store.RetryOnConflict(ctx, store.DefaultAttempts, func(ctx context.Context) error {
		rec, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		switch {
		case rec.ExecutedAt != nil:
			return fmt.Errorf("%w: %s at %s", ErrAlreadyExecuted, id, rec.ExecutedAt.Format(time.RFC3339))
		case rec.Status != model.OverrideApproved:
			return fmt.Errorf("%w: status %s", ErrNotExecutable, rec.Status)
		case model.IsExpired(rec, now):
			return fmt.Errorf("%w: %s expired at %s", ErrExpired, id, rec.ExpiresAt.Format(time.RFC3339))
		}
		rec.ExecutedAt = &now
		rec.ExecutedBy = executedBy
		rec.UpdatedAt = now
		out, err = s.store.Update(ctx, rec)
		return err
	})
	if err != nil {
		return model.OverrideRecord{}, err
	}

	if s.linker != nil {
		if err := s.linker.LinkOverride(ctx, out.DecisionID, out); err != nil {
			s.log.Errorw("link override to decision failed", map[string]any{
				"override_id": out.ID,
				"decision_id": out.DecisionID,
				"error":       err.Error(),
			})
		}
	}
	s.emit(ctx, out, events.OverrideExecuted, executedBy)
	return out, nil
}

// Cancel withdraws a pending override.
func (s *Service) Cancel(ctx context.Context, id, actor string) (model.OverrideRecord, error) {
	if actor == "" {
		return model.OverrideRecord{}, fmt.Errorf("%w: actor is required", ErrInvalidRequest)
	}
	unlock, err := s.locker.Lock(ctx, lockKey(id))
	if err != nil {
		return model.OverrideRecord{}, fmt.Errorf("lock override %s: %w", id, err)
	}
	defer unlock()

	var out model.OverrideRecord
	err = store.RetryOnConflict(ctx, store.DefaultAttempts, func(ctx context.Context) error {
		rec, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status != model.OverridePending {
			return fmt.Errorf("%w: status %s", ErrNotPending, rec.Status)
		}
		now := s.now()
		rec.Status = model.OverrideCancelled
		rec.CancelledBy = actor
		rec.CancelledAt = &now
		rec.UpdatedAt = now
		out, err = s.store.Update(ctx, rec)
		return err
	})
	if err != nil {
		return model.OverrideRecord{}, err
	}
	s.emit(ctx, out, events.OverrideCancelled, actor)
	return out, nil
}

func (s *Service) find(ctx context.Context, id string) (model.OverrideRecord, error) {
	rec, err := s.store.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.OverrideRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

func (s *Service) emit(ctx context.Context, rec model.OverrideRecord, action events.OverrideAction, actor string) {
	now := s.now()
	events.Dispatch(ctx, s.notifier, s.log, events.OverrideEvent{
		OverrideID: rec.ID,
		DecisionID: rec.DecisionID,
		Action:     action,
		Status:     rec.Status,
		RiskLevel:  rec.EffectiveRiskLevel,
		Actor:      actor,
		At:         now,
	})
	if err := metrics.RecordOverride(s.metrics, metrics.OverrideMetric{
		OverrideID: rec.ID,
		Action:     string(action),
		Status:     rec.Status,
		RiskLevel:  rec.EffectiveRiskLevel,
		Time:       now,
	}); err != nil {
		s.log.Debugf("record override metric: %v", err)
	}
}

func (s *Service) emitNext(ctx context.Context, rec model.OverrideRecord, role model.ApproverRole) {
	events.Dispatch(ctx, s.notifier, s.log, events.OverrideEvent{
		OverrideID: rec.ID,
		DecisionID: rec.DecisionID,
		Action:     events.OverrideApprovalRequired,
		Status:     rec.Status,
		RiskLevel:  rec.EffectiveRiskLevel,
		NextRole:   role,
		At:         s.now(),
	})
}

// matchingStep returns the index of the earliest pending step that is
// unbound or bound to approverID, or -1.
func matchingStep(chain []model.ApprovalStep, approverID string) int {
	for i, st := range chain {
		if st.Status != model.StepPending {
			continue
		}
		if st.ApproverID == "" || st.ApproverID == approverID {
			return i
		}
	}
	return -1
}

func allRequiredApproved(chain []model.ApprovalStep) bool {
	for _, st := range chain {
		if st.Required && st.Status != model.StepApproved {
			return false
		}
	}
	return true
}

func pendingSteps(chain []model.ApprovalStep) int {
	n := 0
	for _, st := range chain {
		if st.Status == model.StepPending {
			n++
		}
	}
	return n
}

func nextRole(rec model.OverrideRecord) model.ApproverRole {
	if rec.Status != model.OverridePending {
		return ""
	}
	for _, st := range rec.ApprovalChain {
		if st.Status == model.StepPending {
			return st.Role
		}
	}
	return ""
}

func lockKey(id string) string { return "override:" + id }
