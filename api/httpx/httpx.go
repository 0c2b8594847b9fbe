// Package httpx holds the JSON, error and auth helpers shared by the API
// handlers.
package httpx

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilianp07/consolidation/auth"
	"github.com/kilianp07/consolidation/core/decision"
	"github.com/kilianp07/consolidation/core/override"
	"github.com/kilianp07/consolidation/core/store"
)

// ErrBadRequest marks malformed input detected by a handler.
var ErrBadRequest = errors.New("bad request")

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// Error writes err with the status StatusFor picks.
func Error(w http.ResponseWriter, err error) {
	JSON(w, StatusFor(err), errorBody{Error: err.Error()})
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, decision.ErrInvalidRequest),
		errors.Is(err, override.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, decision.ErrNotFound),
		errors.Is(err, override.ErrNotFound),
		errors.Is(err, override.ErrDecisionNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, override.ErrNoMatchingStep):
		return http.StatusForbidden
	case errors.Is(err, override.ErrNotPending),
		errors.Is(err, override.ErrExpired),
		errors.Is(err, override.ErrNotExecutable),
		errors.Is(err, override.ErrAlreadyExecuted),
		errors.Is(err, decision.ErrShadowDecision),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Decode reads a JSON body into v and rejects unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// Float parses an optional float query parameter.
func Float(r *http.Request, name string, def float64) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrBadRequest, name, err)
	}
	return v, nil
}

// Int parses an optional integer query parameter.
func Int(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrBadRequest, name, err)
	}
	return v, nil
}

// Time parses an optional RFC3339 query parameter.
func Time(r *http.Request, name string) (time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrBadRequest, name, err)
	}
	return t, nil
}

// Authenticate accepts either the static token or, when verifier is set,
// a signed JWT whose principal is stored in the request context. With
// neither configured every request passes.
func Authenticate(token string, verifier *auth.Verifier, next http.Handler) http.Handler {
	if token == "" && verifier == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if token != "" && subtle.ConstantTimeCompare([]byte(raw), []byte(token)) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		if verifier == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		p, err := verifier.Verify(r.Context(), raw)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// Actor returns the authenticated subject when the request carries one, so
// a signed-in caller cannot act under another id. Otherwise given is used.
func Actor(r *http.Request, given string) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok && p.Subject != "" {
		return p.Subject
	}
	return given
}

// RateLimit answers 429 once the shared token bucket is empty. A nil
// limiter disables the check.
func RateLimit(l *rate.Limiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
