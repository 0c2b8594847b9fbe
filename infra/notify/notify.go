// Package notify delivers decision, override and shadow events to the
// in-process bus and to external channels: MQTT, Redis pub/sub, Kafka,
// webhooks and the log.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/factory"
	"github.com/kilianp07/consolidation/core/logger"
	infralogger "github.com/kilianp07/consolidation/infra/logger"
)

// Envelope is the wire form of an event on external channels.
type Envelope struct {
	Topic string    `json:"topic"`
	Type  string    `json:"type"`
	Sent  time.Time `json:"sent"`
	Event any       `json:"event"`
}

// Encode wraps ev in an Envelope and marshals it.
func Encode(ev any) ([]byte, error) {
	env := Envelope{Topic: events.Topic(ev), Type: eventType(ev), Sent: time.Now().UTC(), Event: ev}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", env.Topic, err)
	}
	return data, nil
}

func eventType(ev any) string {
	switch e := ev.(type) {
	case events.DecisionEvent:
		return string(e.Action)
	case events.OverrideEvent:
		return string(e.Action)
	case events.ShadowEvent:
		return string(e.Action)
	default:
		return fmt.Sprintf("%T", ev)
	}
}

// Multi fans an event out to several notifiers. Every notifier is tried.
type Multi []events.Notifier

func (m Multi) Notify(ctx context.Context, ev any) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every notifier that holds a connection.
func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if c, ok := n.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to a logger.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier returns a notifier logging at info level.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: logger.OrNop(log)}
}

func (l *LogNotifier) Notify(_ context.Context, ev any) error {
	l.log.Infow("event", map[string]any{
		"topic": events.Topic(ev),
		"type":  eventType(ev),
		"event": ev,
	})
	return nil
}

var registry = factory.NewRegistry[events.Notifier]()

// Register adds a notifier backend.
func Register(name string, f factory.Factory[events.Notifier]) error {
	return registry.Register(name, f)
}

func init() {
	_ = Register("log", func(map[string]any) (events.Notifier, error) {
		return NewLogNotifier(infralogger.New("notify")), nil
	})
}

// New builds the configured external notifiers. The result can be closed
// to release broker connections.
func New(cfgs []factory.ModuleConfig) (Multi, error) {
	out := make(Multi, 0, len(cfgs))
	for _, c := range cfgs {
		n, err := registry.Create(c)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("notifier %s: %w", c.Type, err)
		}
		out = append(out, n)
	}
	return out, nil
}
