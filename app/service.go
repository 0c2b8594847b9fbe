package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/consolidation/api"
	"github.com/kilianp07/consolidation/auth"
	"github.com/kilianp07/consolidation/config"
	"github.com/kilianp07/consolidation/core/decision"
	"github.com/kilianp07/consolidation/core/impact"
	coremetrics "github.com/kilianp07/consolidation/core/metrics"
	coremon "github.com/kilianp07/consolidation/core/monitoring"
	"github.com/kilianp07/consolidation/core/override"
	"github.com/kilianp07/consolidation/core/shadow"
	"github.com/kilianp07/consolidation/infra/lock"
	"github.com/kilianp07/consolidation/infra/logger"
	"github.com/kilianp07/consolidation/infra/metrics"
	"github.com/kilianp07/consolidation/infra/monitoring"
	"github.com/kilianp07/consolidation/infra/notify"
	"github.com/kilianp07/consolidation/infra/shadowlog"
	"github.com/kilianp07/consolidation/infra/store"
	"github.com/kilianp07/consolidation/internal/eventbus"
)

// Service assembles the decision pipeline, shadow comparator, override
// workflow and their adapters.
type Service struct {
	Decisions  *decision.Service
	Shadow     *shadow.Comparator
	Overrides  *override.Service
	Impact     *impact.Assessor
	Audit      *shadowlog.RotatingJSONL
	Bus        eventbus.EventBus
	cfg        *config.Config
	backend    store.Backend
	notifiers  notify.Multi
	lockClient *redis.Client
	verifier   *auth.Verifier
	sink       coremetrics.MetricsSink
	log        logger.Logger
}

// New creates a Service from the configuration. Partially built resources
// are released when a later step fails.
func New(cfg *config.Config) (_ *Service, err error) {
	logger.SetLevel(cfg.Logging.Level)
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	s := &Service{cfg: cfg, log: logg, Bus: eventbus.New()}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.backend, err = store.Open(cfg.Store); err != nil {
		return nil, fmt.Errorf("store %s: %w", cfg.Store.Type, err)
	}
	if s.notifiers, err = notify.New(cfg.Notify.Sinks); err != nil {
		return nil, fmt.Errorf("notifiers: %w", err)
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	notifier := append(notify.Multi{notify.NewBusNotifier(s.Bus)}, s.notifiers...)

	var auditOpt []shadow.Option
	if cfg.Shadow.Audit.Path != "" {
		if s.Audit, err = shadowlog.Open(cfg.Shadow.Audit); err != nil {
			return nil, fmt.Errorf("shadow audit: %w", err)
		}
		auditOpt = append(auditOpt, shadow.WithAudit(s.Audit))
	}

	s.Decisions = decision.NewService(cfg.Decision, s.backend.Decisions,
		decision.WithConstraints(cfg.Constraints),
		decision.WithLogger(logger.New("decision")),
		decision.WithNotifier(notifier),
		decision.WithMetrics(s.sink),
	)
	s.Shadow = shadow.NewComparator(cfg.Shadow.Config, s.backend.Decisions, append(auditOpt,
		shadow.WithLogger(logger.New("shadow")),
		shadow.WithNotifier(notifier),
		shadow.WithMetrics(s.sink),
	)...)
	s.Decisions.SetShadowSink(s.Shadow)

	overrideOpts := []override.Option{
		override.WithPolicies(cfg.Override.Timeouts.Apply(override.DefaultPolicies())),
		override.WithDecisionReader(s.Decisions),
		override.WithDecisionLinker(s.Decisions),
		override.WithNotifier(notifier),
		override.WithMetrics(s.sink),
		override.WithLogger(logger.New("override")),
	}
	if cfg.Lock.Enabled {
		var locker *lock.RedisLocker
		locker, s.lockClient, err = lock.New(cfg.Lock.Config, logger.New("lock"))
		if err != nil {
			return nil, fmt.Errorf("redis lock: %w", err)
		}
		overrideOpts = append(overrideOpts, override.WithLocker(locker))
	}
	s.Overrides = override.NewService(s.backend.Overrides, overrideOpts...)
	s.Impact = impact.NewAssessor(cfg.Impact, s.Decisions, logger.New("impact"))

	if cfg.HTTP.JWT.Enabled() {
		if s.verifier, err = auth.NewVerifier(cfg.HTTP.JWT); err != nil {
			return nil, fmt.Errorf("jwt: %w", err)
		}
	}
	return s, nil
}

// Handler returns the HTTP API of the service.
func (s *Service) Handler() http.Handler {
	return api.NewRouter(api.Deps{
		Decisions: s.Decisions,
		Overrides: s.Overrides,
		Impact:    s.Impact,
		Shadow:    s.Shadow,
		Audit:     auditQuerier(s.Audit),
		Bus:       s.Bus,
	},
		api.WithToken(s.cfg.HTTP.AuthToken),
		api.WithVerifier(s.verifier),
		api.WithRateLimit(s.cfg.HTTP.RateLimit, s.cfg.HTTP.RateBurst),
	)
}

// Run starts the background jobs and the HTTP server and blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	defer coremon.Recover()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collected := metrics.StartEventCollector(ctx, s.Bus, s.sink)
	go s.Overrides.RunSweeper(ctx, s.cfg.Override.SweepInterval)
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.HTTP.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("http api listening on %s", s.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warnf("http shutdown: %v", err)
	}
	cancel()
	<-collected
	return runErr
}

// Close drains the shadow queue and releases every adapter.
func (s *Service) Close() error {
	if s.Shadow != nil {
		s.Shadow.Close()
	}
	var errs []error
	if s.Audit != nil {
		errs = append(errs, s.Audit.Close())
	}
	if s.notifiers != nil {
		errs = append(errs, s.notifiers.Close())
	}
	if s.lockClient != nil {
		errs = append(errs, s.lockClient.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	errs = append(errs, s.backend.Close())
	if s.Bus != nil {
		s.Bus.Close()
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}

func auditQuerier(a *shadowlog.RotatingJSONL) api.AuditQuerier {
	if a == nil {
		return nil
	}
	return a
}
