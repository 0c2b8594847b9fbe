package config

import (
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/consolidation/auth"
	"github.com/kilianp07/consolidation/core/factory"
	"github.com/kilianp07/consolidation/core/metrics"
	"github.com/kilianp07/consolidation/core/override"
	"github.com/kilianp07/consolidation/core/shadow"
	"github.com/kilianp07/consolidation/infra/lock"
	"github.com/kilianp07/consolidation/infra/shadowlog"
)

// ShadowConfig holds the comparator settings and the optional audit file.
type ShadowConfig struct {
	shadow.Config `json:",squash"`
	Audit         shadowlog.Config `json:"audit"`
}

// OverrideConfig tunes approval timeouts and the expiry sweep. A zero
// SweepInterval disables the sweep; reads still expire lazily.
type OverrideConfig struct {
	Timeouts      override.TimeoutConfig `json:"timeouts"`
	SweepInterval time.Duration          `json:"sweep_interval"`
}

func (c OverrideConfig) Validate() error {
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must not be negative")
	}
	return c.Timeouts.Validate()
}

// LockConfig enables the Redis locker for override approvals. Without it
// approvals are serialised per process only.
type LockConfig struct {
	Enabled     bool `json:"enabled"`
	lock.Config `json:",squash"`
}

func (c LockConfig) Validate() error {
	if c.Enabled && c.URL == "" {
		return fmt.Errorf("url is required when the lock is enabled")
	}
	return nil
}

// NotifyConfig lists external notifiers (log, mqtt, redis, kafka, webhook). Events always
// reach the in-process bus.
type NotifyConfig struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}

// MetricsConfig lists metric sinks and the Prometheus listen address. An
// empty address disables the /metrics server.
type MetricsConfig struct {
	metrics.Config `json:",squash"`
	PrometheusAddr string `json:"prometheus_addr"`
}

// HTTPConfig configures the API server. With neither AuthToken nor a JWT
// key source set, bearer authentication is disabled. RateLimit <= 0 lifts
// the request cap.
type HTTPConfig struct {
	Addr              string        `json:"addr"`
	AuthToken         string        `json:"auth_token"`
	JWT               auth.JWTConf  `json:"jwt"`
	RateLimit         float64       `json:"rate_limit"`
	RateBurst         int           `json:"rate_burst"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		c.RateBurst = int(math.Ceil(c.RateLimit))
	}
}

func (c HTTPConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.JWT.Secret != "" && c.JWT.JWKSURL != "" {
		return fmt.Errorf("jwt secret and jwks_url are mutually exclusive")
	}
	return nil
}
