package shadow

import (
	"fmt"
	"time"
)

const (
	DefaultValidationThreshold = 10.0
	DefaultQueueSize           = 256
	DefaultPairWindow          = 5 * time.Minute
	DefaultHistoryLimit        = 50
)

// Config is the process-wide shadow mode configuration.
type Config struct {
	Enabled             bool    `json:"enabled"`
	ComparisonEnabled   bool    `json:"comparison_enabled"`
	LogAllDecisions     bool    `json:"log_all_decisions"`
	ValidationThreshold float64 `json:"validation_threshold"`
	// QueueSize bounds the asynchronous write queue and the production
	// comparison queue. It is read once at construction.
	QueueSize int `json:"queue_size"`
}

// SetDefaults fills unset numeric fields.
func (c *Config) SetDefaults() {
	if c.ValidationThreshold == 0 {
		c.ValidationThreshold = DefaultValidationThreshold
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// Validate rejects negative thresholds.
func (c Config) Validate() error {
	if c.ValidationThreshold < 0 {
		return fmt.Errorf("validation_threshold must not be negative")
	}
	return nil
}

// logging reports whether shadow decisions should be persisted.
func (c Config) logging() bool { return c.Enabled || c.LogAllDecisions }
