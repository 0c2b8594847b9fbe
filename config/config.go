package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/consolidation/core/constraint"
	"github.com/kilianp07/consolidation/core/decision"
	"github.com/kilianp07/consolidation/core/factory"
	"github.com/kilianp07/consolidation/core/impact"
)

type Config struct {
	Decision    decision.Config      `json:"decision"`
	Constraints constraint.Config    `json:"constraints"`
	Shadow      ShadowConfig         `json:"shadow"`
	Override    OverrideConfig       `json:"override"`
	Impact      impact.Config        `json:"impact"`
	Store       factory.ModuleConfig `json:"store"`
	Lock        LockConfig           `json:"lock"`
	Notify      NotifyConfig         `json:"notify"`
	Metrics     MetricsConfig        `json:"metrics"`
	Logging     LoggingConfig        `json:"logging"`
	Sentry      SentryConfig         `json:"sentry"`
	HTTP        HTTPConfig           `json:"http"`
}

// Load reads a YAML or JSON file, applies K_ prefixed environment
// overrides (K_SHADOW__ENABLED=true sets shadow.enabled), then fills
// defaults and validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, as used when
// no file is given.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Decision.SetDefaults()
	c.Constraints.SetDefaults()
	c.Shadow.SetDefaults()
	c.Impact.SetDefaults()
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	c.Lock.SetDefaults()
	c.Logging.SetDefaults()
	c.HTTP.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"decision", c.Decision.Validate},
		{"constraints", c.Constraints.Validate},
		{"shadow", c.Shadow.Validate},
		{"override", c.Override.Validate},
		{"lock", c.Lock.Validate},
		{"logging", c.Logging.Validate},
		{"http", c.HTTP.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	return nil
}
