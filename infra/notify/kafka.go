package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/factory"
)

// DefaultKafkaTopic receives every event when no topic is configured.
const DefaultKafkaTopic = "consolidation.events"

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig locates the brokers and the destination topic.
type KafkaConfig struct {
	Brokers      []string      `json:"brokers"`
	Topic        string        `json:"topic"`
	ClientID     string        `json:"client_id"`
	MaxAttempts  int           `json:"max_attempts"`
	BatchTimeout time.Duration `json:"batch_timeout"`
}

// KafkaNotifier writes event envelopes to one topic, keyed by the event
// topic so that each stream keeps its order within a partition.
type KafkaNotifier struct {
	w kafkaWriter
}

// NewKafkaNotifier builds a synchronous writer requiring acks from all
// replicas.
func NewKafkaNotifier(cfg KafkaConfig) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultKafkaTopic
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  cfg.MaxAttempts,
		BatchTimeout: cfg.BatchTimeout,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
	return &KafkaNotifier{w: w}, nil
}

func (k *KafkaNotifier) Notify(ctx context.Context, ev any) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	topic := events.Topic(ev)
	msg := kafka.Message{
		Key:   []byte(topic),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-topic", Value: []byte(topic)},
			{Key: "event-type", Value: []byte(eventType(ev))},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error { return k.w.Close() }

func init() {
	_ = Register("kafka", func(conf map[string]any) (events.Notifier, error) {
		var c KafkaConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewKafkaNotifier(c)
	})
}
