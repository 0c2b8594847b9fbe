// Package store selects a persistence backend for decisions and overrides.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/consolidation/core/factory"
	corestore "github.com/kilianp07/consolidation/core/store"
	"github.com/kilianp07/consolidation/infra/store/memory"
	"github.com/kilianp07/consolidation/infra/store/sqlstore"
)

// Backend bundles the stores of one backend with its cleanup.
type Backend struct {
	Decisions corestore.DecisionStore
	Overrides corestore.OverrideStore
	close     func() error
}

// Close releases the backend's resources.
func (b Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

var registry = factory.NewRegistry[Backend]()

func init() {
	_ = registry.Register("memory", func(map[string]any) (Backend, error) {
		return Backend{Decisions: memory.NewDecisionStore(), Overrides: memory.NewOverrideStore()}, nil
	})
	_ = registry.Register("sqlite", func(conf map[string]any) (Backend, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return Backend{}, err
		}
		if c.Path == "" {
			return Backend{}, fmt.Errorf("sqlite store requires path")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err := sqlstore.OpenSQLite(ctx, c.Path)
		if err != nil {
			return Backend{}, err
		}
		return Backend{Decisions: db.Decisions(), Overrides: db.Overrides(), close: db.Close}, nil
	})
	_ = registry.Register("postgres", func(conf map[string]any) (Backend, error) {
		var c struct {
			DSN string `json:"dsn"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return Backend{}, err
		}
		if c.DSN == "" {
			return Backend{}, fmt.Errorf("postgres store requires dsn")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err := sqlstore.OpenPostgres(ctx, c.DSN)
		if err != nil {
			return Backend{}, err
		}
		return Backend{Decisions: db.Decisions(), Overrides: db.Overrides(), close: db.Close}, nil
	})
}

// Open builds the backend named by cfg.Type. An empty type selects memory.
func Open(cfg factory.ModuleConfig) (Backend, error) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	return registry.Create(cfg)
}

// Types lists the registered backends.
func Types() []string { return registry.Types() }
