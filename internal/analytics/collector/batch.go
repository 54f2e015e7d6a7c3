// Package collector batches analytics events in memory and ships them to
// Kafka in bulk. The analyzer reports one event per analyzed document;
// batching keeps that from costing a broker round trip each.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
)

// publisher is the part of kafka.Producer the collector needs; tests
// substitute their own.
type publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// requeueFactor caps the buffer after a failed flush at this multiple of
// the batch size; anything past it is dropped newest-first.
const requeueFactor = 3

// finalFlushTimeout bounds the last flush during shutdown, when the
// caller's context is already dead.
const finalFlushTimeout = 5 * time.Second

// BatchCollector accumulates events and flushes when the batch fills or
// the interval elapses, whichever comes first.
type BatchCollector struct {
	producer      publisher
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}

	mu      sync.Mutex
	pending []kafka.Event
}

// NewBatchCollector creates a BatchCollector. Non-positive batchSize and
// flushInterval fall back to 100 events and 5 seconds.
func NewBatchCollector(producer *kafka.Producer, batchSize int, flushInterval time.Duration) *BatchCollector {
	return newBatchCollector(producer, batchSize, flushInterval)
}

func newBatchCollector(producer publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		producer:      producer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		done:          make(chan struct{}),
		pending:       make([]kafka.Event, 0, batchSize),
	}
}

// Start launches the background flush loop.
func (bc *BatchCollector) Start(ctx context.Context) {
	go bc.run(ctx)
	bc.logger.Info("batch collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

// run flushes on every tick until ctx is cancelled, then takes one last
// pass with a fresh deadline so shutdown does not strand buffered events.
func (bc *BatchCollector) run(ctx context.Context) {
	defer close(bc.done)
	ticker := time.NewTicker(bc.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bc.flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			bc.flush(flushCtx)
			cancel()
			return
		}
	}
}

// Track buffers one event, keyed by corpus so per-corpus ordering survives
// partitioning. Filling the batch triggers a flush off the caller's
// goroutine.
func (bc *BatchCollector) Track(corpus string, value any) {
	bc.mu.Lock()
	bc.pending = append(bc.pending, kafka.Event{Key: corpus, Value: value})
	filled := len(bc.pending) >= bc.batchSize
	bc.mu.Unlock()

	if filled {
		go bc.flush(context.Background())
	}
}

// Close blocks until the flush loop has exited. Call only after the
// context passed to Start is cancelled.
func (bc *BatchCollector) Close() {
	<-bc.done
}

// BufferLen reports how many events are waiting to be flushed.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

// flush swaps the buffer out under the lock and publishes outside it.
func (bc *BatchCollector) flush(ctx context.Context) {
	bc.mu.Lock()
	if len(bc.pending) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.pending
	bc.pending = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	if err := bc.producer.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("batch flush failed", "events", len(batch), "error", err)
		bc.requeue(batch)
		return
	}
	bc.logger.Debug("published batch", "events", len(batch))
}

// requeue puts a failed batch back in front of anything tracked since,
// trimming from the tail once the retained total passes the bound.
func (bc *BatchCollector) requeue(batch []kafka.Event) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.pending = append(batch, bc.pending...)
	if limit := bc.batchSize * requeueFactor; len(bc.pending) > limit {
		dropped := len(bc.pending) - limit
		bc.pending = bc.pending[:limit]
		bc.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
	}
}
