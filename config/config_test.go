package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `decision:
  min_acceptable_score: 55
  parallelism: 4
constraints:
  hard_capacity_percent: 97
shadow:
  enabled: true
  comparison_enabled: true
  validation_threshold: 12.5
  audit:
    path: /tmp/shadow.jsonl
    max_size_mb: 10
override:
  timeouts:
    low_minutes: 15
  sweep_interval: 1m
store:
  type: sqlite
  conf:
    path: consolidation.db
lock:
  enabled: true
  url: redis://localhost:6379/0
  ttl: 30s
notify:
  sinks:
    - type: log
    - type: redis
      conf:
        url: redis://localhost:6379/0
metrics:
  sinks:
    - type: prometheus
  prometheus_addr: ":9100"
http:
  addr: ":9000"
  auth_token: secret
  rate_limit: 20
  jwt:
    secret: jwt-secret
    audience: consolidation
    leeway: 30s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 55.0, cfg.Decision.MinAcceptableScore)
	assert.Equal(t, 4, cfg.Decision.Parallelism)
	assert.Equal(t, 97.0, cfg.Constraints.HardCapacityPercent)
	assert.Equal(t, 90.0, cfg.Constraints.SoftCapacityPercent)
	assert.True(t, cfg.Shadow.Enabled)
	assert.True(t, cfg.Shadow.ComparisonEnabled)
	assert.Equal(t, 12.5, cfg.Shadow.ValidationThreshold)
	assert.Equal(t, 256, cfg.Shadow.QueueSize)
	assert.Equal(t, "/tmp/shadow.jsonl", cfg.Shadow.Audit.Path)
	assert.Equal(t, 15, cfg.Override.Timeouts.LowMinutes)
	assert.Equal(t, time.Minute, cfg.Override.SweepInterval)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "consolidation.db", cfg.Store.Conf["path"])
	assert.True(t, cfg.Lock.Enabled)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Lock.URL)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 5*time.Second, cfg.Lock.Wait)
	require.Len(t, cfg.Notify.Sinks, 2)
	assert.Equal(t, "redis", cfg.Notify.Sinks[1].Type)
	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, ":9100", cfg.Metrics.PrometheusAddr)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "secret", cfg.HTTP.AuthToken)
	assert.Equal(t, 20, cfg.HTTP.RateBurst)
	assert.True(t, cfg.HTTP.JWT.Enabled())
	assert.Equal(t, 30*time.Second, cfg.HTTP.JWT.Leeway)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadJSONWithEnvOverride(t *testing.T) {
	path := writeFile(t, "config.json", `{"shadow": {"enabled": false}, "logging": {"level": "debug"}}`)
	t.Setenv("K_SHADOW__ENABLED", "true")
	t.Setenv("K_HTTP__ADDR", ":7000")
	t.Setenv("K_SHADOW__VALIDATION_THRESHOLD", "7.5")
	t.Setenv("K_HTTP__JWT__SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Shadow.Enabled)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, 7.5, cfg.Shadow.ValidationThreshold)
	assert.Equal(t, "from-env", cfg.HTTP.JWT.Secret)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Store.Type)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown level":    "logging:\n  level: verbose\n",
		"lock without url": "lock:\n  enabled: true\n",
		"soft above hard":  "constraints:\n  hard_capacity_percent: 80\n  soft_capacity_percent: 85\n",
		"negative timeout": "override:\n  timeouts:\n    high_minutes: -1\n",
		"two jwt sources":  "http:\n  jwt:\n    secret: s\n    jwks_url: https://idp/jwks\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", data))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeFile(t, "config.toml", ""))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 50.0, cfg.Decision.MinAcceptableScore)
}
