// Package consumer keeps the scorer's corpus registry in sync with the
// analyzer: every flush event triggers a snapshot reload and invalidates
// the cached scores of the affected corpus.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corpuslab/corpus-analytics-platform/internal/analyzer"
	"github.com/corpuslab/corpus-analytics-platform/internal/corpus"
	"github.com/corpuslab/corpus-analytics-platform/internal/corpus/snapshot"
	"github.com/corpuslab/corpus-analytics-platform/internal/scorer/cache"
	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
)

// FlushConsumer wraps a Kafka consumer that follows flush events.
type FlushConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a FlushConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *FlushConsumer {
	return &FlushConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "flush-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (fc *FlushConsumer) Start(ctx context.Context) error {
	fc.logger.Info("flush consumer starting")
	return fc.consumer.Start(ctx)
}

// RecoverAll loads the newest snapshot of every corpus under dataDir into
// the registry. Corpora whose snapshots cannot be read are skipped; the
// next flush event repairs them. Returns the number of corpora loaded.
func RecoverAll(dataDir string, registry *corpus.Registry) int {
	logger := slog.Default().With("component", "flush-consumer")

	names := snapshot.Corpora(dataDir)

	loaded := 0
	for _, name := range names {
		docs, seq, err := snapshot.LoadLatest(dataDir, name)
		if err != nil {
			logger.Error("failed to load snapshot, skipping corpus",
				"corpus", name,
				"error", err,
			)
			continue
		}
		registry.GetOrCreate(name).Import(docs)
		loaded++
		logger.Info("recovered corpus from snapshot",
			"corpus", name,
			"sequence", seq,
			"documents", len(docs),
		)
	}
	return loaded
}

// HandleMessage returns a Kafka MessageHandler that reloads the flushed
// corpus from its newest snapshot and drops the corpus's cached scores.
// scoreCache may be nil when the scorer runs without Redis.
func HandleMessage(dataDir string, registry *corpus.Registry, scoreCache *cache.ScoreCache) kafka.MessageHandler {
	logger := slog.Default().With("component", "flush-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[analyzer.FlushEvent](value)
		if err != nil {
			logger.Error("failed to decode flush event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if event.Corpus == "" {
			logger.Error("flush event missing corpus name", "key", string(key))
			return nil
		}

		docs, seq, err := snapshot.LoadLatest(dataDir, event.Corpus)
		if err != nil {
			return fmt.Errorf("loading snapshot for corpus %s: %w", event.Corpus, err)
		}
		if seq < event.Sequence {
			// The event outran the shared volume; redeliver until the
			// snapshot is visible.
			return fmt.Errorf("snapshot for corpus %s at sequence %d, flush event announced %d",
				event.Corpus, seq, event.Sequence)
		}

		registry.GetOrCreate(event.Corpus).Import(docs)

		if scoreCache != nil {
			if err := scoreCache.InvalidateCorpus(ctx, event.Corpus); err != nil {
				logger.Error("failed to invalidate cached scores",
					"corpus", event.Corpus,
					"error", err,
				)
			}
		}

		logger.Info("corpus reloaded",
			"corpus", event.Corpus,
			"sequence", seq,
			"documents", len(docs),
		)
		return nil
	}
}
