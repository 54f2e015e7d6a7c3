// Package kafka wraps segmentio/kafka-go with the platform's conventions:
// JSON event payloads, hash-partitioned keys, consumer groups with explicit
// per-message commits, and component-scoped slog logging.
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

// Reader tuning. MaxWait keeps fetches responsive on quiet topics without
// hammering the broker.
const (
	fetchMinBytes = 1e3
	fetchMaxBytes = 10e6
	fetchMaxWait  = 500 * time.Millisecond
)

// MessageHandler processes one Kafka message. A nil return commits the
// offset; an error leaves it uncommitted so the message is redelivered
// after a restart or rebalance.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer runs a fetch/handle/commit loop over one topic as part of the
// platform consumer group.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
}

// NewConsumer builds a Consumer for topic. Consumption starts at the last
// offset: corpora are rebuilt from snapshots, not by replaying history.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    fetchMinBytes,
			MaxBytes:    fetchMaxBytes,
			MaxWait:     fetchMaxWait,
			StartOffset: kafka.LastOffset,
		}),
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
	}
}

// Start blocks in the consume loop until ctx is cancelled, then closes the
// reader so the group rebalances promptly.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return c.reader.Close()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("kafka fetch failed", "error", err)
			continue
		}
		c.process(ctx, msg)
	}
}

// process runs the handler and commits on success. Offsets are committed
// one message at a time: throughput on these topics is modest and
// at-least-once delivery matters more than commit batching.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	logger := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	logger.Debug("message received", "key", string(msg.Key), "value_size", len(msg.Value))

	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		logger.Error("handler failed, offset not committed", "error", err)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		logger.Error("offset commit failed", "error", err)
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("decoding kafka message: %w", err)
	}
	return out, nil
}
