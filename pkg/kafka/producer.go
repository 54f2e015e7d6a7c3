package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Writer tuning. Writes are synchronous and acked by all replicas: losing
// a document-created event would strand the document in PENDING forever.
const (
	writeBatchSize    = 100
	writeBatchTimeout = 10 * time.Millisecond
	writeMaxAttempts  = 3
)

// Event is one unit published to Kafka. Key feeds the hash balancer, so
// events sharing a key (a corpus name, a document ID) land on one partition
// and keep their relative order. Value is marshalled to JSON.
type Event struct {
	Key   string
	Value any
}

// message renders the event for the wire.
func (e Event) message() (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling event value: %w", err)
	}
	return kafka.Message{Key: []byte(e.Key), Value: value}, nil
}

// Producer publishes JSON events to a single topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer builds a synchronous Producer for topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    writeBatchSize,
			BatchTimeout: writeBatchTimeout,
			MaxAttempts:  writeMaxAttempts,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish marshals one event and writes it, blocking until acked.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := event.message()
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish failed", "key", event.Key, "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("message published", "key", event.Key, "value_size", len(msg.Value))
	return nil
}

// PublishBatch writes events in one call. Marshalling fails the whole
// batch up front rather than publishing a prefix.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := event.message()
		if err != nil {
			return err
		}
		messages[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("batch publish failed", "count", len(messages), "error", err)
		return fmt.Errorf("publishing batch to kafka: %w", err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
