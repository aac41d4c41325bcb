package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes notifications to a Kafka topic keyed by recipient, so
// per-user delivery order is preserved within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{client: client, topic: topic, logger: logger}, nil
}

type kafkaEnvelope struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// Publish produces asynchronously; delivery failures are logged in the
// produce callback. A full producer buffer is the only error surfaced here.
func (s *KafkaSink) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(kafkaEnvelope{
		ID:        n.ID,
		Recipient: n.Recipient.String(),
		Kind:      string(n.Kind),
		Message:   n.Message,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(n.Recipient.String()),
		Value: payload,
	}
	s.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn("kafka notification delivery failed",
				"topic", s.topic,
				"kind", string(n.Kind),
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes pending records and releases the client.
func (s *KafkaSink) Close(ctx context.Context) error {
	if err := s.client.Flush(ctx); err != nil {
		s.client.Close()
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	s.client.Close()
	return nil
}

var _ Sink = (*KafkaSink)(nil)
