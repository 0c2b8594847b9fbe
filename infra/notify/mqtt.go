package notify

import (
	"context"
	"strings"

	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/factory"
	"github.com/kilianp07/consolidation/infra/mqtt"
)

// DefaultTopicPrefix roots every MQTT topic and Redis channel.
const DefaultTopicPrefix = "consolidation"

type publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MQTTNotifier publishes events to <prefix>/<topic>. Overrides waiting for
// an approver are also published to <prefix>/overrides/approvals/<role>.
type MQTTNotifier struct {
	pub    publisher
	prefix string
	close  func()
}

// MQTTConfig embeds the client settings and adds the topic prefix.
type MQTTConfig struct {
	mqtt.Config `json:",squash"`
	TopicPrefix string `json:"topic_prefix"`
}

// NewMQTTNotifier connects a Paho client.
func NewMQTTNotifier(cfg MQTTConfig) (*MQTTNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cli, err := mqtt.NewPahoClient(cfg.Config)
	if err != nil {
		return nil, err
	}
	n := newMQTTNotifier(cli, cfg.TopicPrefix)
	n.close = cli.Disconnect
	return n, nil
}

func newMQTTNotifier(pub publisher, prefix string) *MQTTNotifier {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTTNotifier{pub: pub, prefix: strings.TrimSuffix(prefix, "/")}
}

func (m *MQTTNotifier) Notify(ctx context.Context, ev any) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := m.pub.Publish(ctx, m.prefix+"/"+events.Topic(ev), payload); err != nil {
		return err
	}
	if oe, ok := ev.(events.OverrideEvent); ok && oe.Action == events.OverrideApprovalRequired && oe.NextRole != "" {
		return m.pub.Publish(ctx, m.prefix+"/overrides/approvals/"+string(oe.NextRole), payload)
	}
	return nil
}

// Close disconnects the client.
func (m *MQTTNotifier) Close() error {
	if m.close != nil {
		m.close()
	}
	return nil
}

func init() {
	_ = Register("mqtt", func(conf map[string]any) (events.Notifier, error) {
		var c MQTTConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewMQTTNotifier(c)
	})
}
