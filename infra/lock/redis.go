// Package lock provides a Redis backed store.Locker so that override
// approvals are serialised across service instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/consolidation/core/logger"
)

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// ErrNotAcquired is returned when the lock could not be taken before the
// wait deadline.
var ErrNotAcquired = errors.New("lock not acquired")

// Config controls the Redis locker.
type Config struct {
	URL    string        `json:"url"`
	Prefix string        `json:"prefix"`
	TTL    time.Duration `json:"ttl"`
	Wait   time.Duration `json:"wait"`
	Retry  time.Duration `json:"retry"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Prefix == "" {
		c.Prefix = "consolidation:lock:"
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Second
	}
	if c.Wait <= 0 {
		c.Wait = 5 * time.Second
	}
	if c.Retry <= 0 {
		c.Retry = 50 * time.Millisecond
	}
}

// RedisLocker implements store.Locker with SET NX and a token checked
// release script.
type RedisLocker struct {
	client redis.Cmdable
	cfg    Config
	log    logger.Logger
}

// New parses cfg.URL and returns a locker with its own client.
func New(cfg Config, log logger.Logger) (*RedisLocker, *redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	return NewWithClient(client, cfg, log), client, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.Cmdable, cfg Config, log logger.Logger) *RedisLocker {
	cfg.SetDefaults()
	return &RedisLocker{client: client, cfg: cfg, log: logger.OrNop(log)}
}

// Lock blocks until key is held, cfg.Wait elapses or ctx is done. The
// returned function releases the lock only if this holder still owns it.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	full := l.cfg.Prefix + key
	token := uuid.NewString()
	deadline := time.NewTimer(l.cfg.Wait)
	defer deadline.Stop()
	for {
		ok, err := l.client.SetNX(ctx, full, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		case <-time.After(l.cfg.Retry):
		}
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.Eval(rctx, releaseScript, []string{full}, token).Err(); err != nil {
			l.log.Warnw("lock release failed", map[string]any{"key": full, "error": err.Error()})
		}
	}, nil
}
