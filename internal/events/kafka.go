package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"pol-gateway/internal/domain"
)

// KafkaConfig holds Kafka producer configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON, keyed by operation kind so events of one
// kind stay ordered within a partition.
type Kafka struct {
	writer messageWriter
	now    func() time.Time
}

var _ Publisher = (*Kafka)(nil)

// NewKafka creates a synchronous producer that waits for all replicas.
func NewKafka(cfg KafkaConfig) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Kafka{writer: w, now: time.Now}
}

// Publish writes ev and blocks until the brokers acknowledge it.
func (k *Kafka) Publish(ctx context.Context, ev domain.TransactionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Kind),
		Value: data,
		Time:  k.now(),
	})
	if err != nil {
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
