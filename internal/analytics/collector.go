package analytics

import (
	"context"
	"log/slog"

	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
)

// eventPublisher is the part of kafka.Producer the collector needs; tests
// substitute their own.
type eventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector forwards analytics events to Kafka from a buffered channel, so
// the scoring path never blocks on the broker. When the buffer is full the
// event is dropped: analytics is an observer of scoring, never a brake on
// it.
type Collector struct {
	producer eventPublisher
	events   chan any
	logger   *slog.Logger
	done     chan struct{}
}

// NewCollector creates a Collector with the given channel capacity
// (10000 when bufferSize is not positive).
func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	return newCollector(producer, bufferSize)
}

func newCollector(producer eventPublisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		events:   make(chan any, bufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		done:     make(chan struct{}),
	}
}

// Start launches the forwarding goroutine.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started", "buffer_size", cap(c.events))
}

// run forwards events until the channel closes or ctx is cancelled. On
// cancellation it drains whatever is already buffered before exiting.
func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				return
			}
			c.publish(ctx, event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

// Track enqueues an event without blocking.
func (c *Collector) Track(event any) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the forwarder to finish.
func (c *Collector) Close() {
	close(c.events)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event any) {
	err := c.producer.Publish(ctx, kafka.Event{Key: eventKey(event), Value: event})
	if err != nil {
		c.logger.Error("publishing analytics event failed", "error", err)
	}
}

// drain empties the channel without waiting for new events. Runs after ctx
// cancellation, so publishes use a fresh context.
func (c *Collector) drain() {
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}

// eventKey keys analytics events by corpus so events for the same corpus
// land on the same partition in order.
func eventKey(event any) string {
	switch e := event.(type) {
	case ScoreEvent:
		if e.Corpus != "" {
			return e.Corpus
		}
	case AnalyzeEvent:
		if e.Corpus != "" {
			return e.Corpus
		}
	}
	return "analytics"
}
