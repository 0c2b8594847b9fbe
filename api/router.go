// Package api assembles the HTTP handlers of the consolidation service.
package api

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/kilianp07/consolidation/api/decisions"
	"github.com/kilianp07/consolidation/api/events"
	"github.com/kilianp07/consolidation/api/httpx"
	"github.com/kilianp07/consolidation/api/overrides"
	"github.com/kilianp07/consolidation/api/shadow"
	"github.com/kilianp07/consolidation/auth"
	"github.com/kilianp07/consolidation/core/decision"
	"github.com/kilianp07/consolidation/core/impact"
	"github.com/kilianp07/consolidation/core/override"
	coreshadow "github.com/kilianp07/consolidation/core/shadow"
	"github.com/kilianp07/consolidation/internal/eventbus"
)

// AuditQuerier reads the shadow audit file.
type AuditQuerier = shadow.AuditQuerier

// Deps are the services behind the API. Shadow, Audit and Bus may be nil.
type Deps struct {
	Decisions *decision.Service
	Overrides *override.Service
	Impact    *impact.Assessor
	Shadow    *coreshadow.Comparator
	Audit     AuditQuerier
	Bus       eventbus.EventBus
}

type options struct {
	token    string
	verifier *auth.Verifier
	limiter  *rate.Limiter
}

// Option customises the router.
type Option func(*options)

// WithToken requires "Bearer <token>" on every route except /healthz.
func WithToken(token string) Option { return func(o *options) { o.token = token } }

// WithVerifier also accepts bearer JWTs checked by v.
func WithVerifier(v *auth.Verifier) Option { return func(o *options) { o.verifier = v } }

// WithRateLimit caps the request rate across all clients. rps <= 0
// disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewRouter returns the API handler.
func NewRouter(d Deps, opts ...Option) http.Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	mux := http.NewServeMux()
	decisions.Register(mux, d.Decisions)
	overrides.Register(mux, d.Overrides, d.Impact)
	if d.Shadow != nil {
		shadow.Register(mux, d.Shadow, d.Audit)
	}
	if d.Bus != nil {
		events.Register(mux, d.Bus)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.Handle("/", httpx.RateLimit(o.limiter, httpx.Authenticate(o.token, o.verifier, mux)))
	return root
}
