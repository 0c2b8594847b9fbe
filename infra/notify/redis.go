package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/factory"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisConfig locates the Redis server used for pub/sub.
type RedisConfig struct {
	URL           string        `json:"url"`
	ChannelPrefix string        `json:"channel_prefix"`
	Timeout       time.Duration `json:"timeout"`
}

// RedisNotifier publishes events on <prefix>:<topic> channels.
type RedisNotifier struct {
	rdb     redisPublisher
	prefix  string
	timeout time.Duration
	close   func() error
}

// NewRedisNotifier parses cfg.URL and opens a client.
func NewRedisNotifier(cfg RedisConfig) (*RedisNotifier, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	n := newRedisNotifier(client, cfg)
	n.close = client.Close
	return n, nil
}

func newRedisNotifier(rdb redisPublisher, cfg RedisConfig) *RedisNotifier {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = DefaultTopicPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &RedisNotifier{rdb: rdb, prefix: cfg.ChannelPrefix, timeout: cfg.Timeout}
}

// Channel returns the channel an event is published on.
func (r *RedisNotifier) Channel(ev any) string { return r.prefix + ":" + events.Topic(ev) }

func (r *RedisNotifier) Notify(ctx context.Context, ev any) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.Channel(ev), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *RedisNotifier) Close() error {
	if r.close != nil {
		return r.close()
	}
	return nil
}

func init() {
	_ = Register("redis", func(conf map[string]any) (events.Notifier, error) {
		var c RedisConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRedisNotifier(c)
	})
}
