// Package consumer reads document events from Kafka and feeds them through
// the analyzer engine, updating document status in PostgreSQL as it goes.
package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/internal/analytics"
	"github.com/corpuslab/corpus-analytics-platform/internal/analytics/collector"
	"github.com/corpuslab/corpus-analytics-platform/internal/analyzer"
	"github.com/corpuslab/corpus-analytics-platform/internal/ingestion"
	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
	"github.com/corpuslab/corpus-analytics-platform/pkg/resilience"
)

// AnalyzeConsumer wraps a Kafka consumer to drive the analysis pipeline.
type AnalyzeConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an AnalyzeConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *AnalyzeConsumer {
	return &AnalyzeConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "analyze-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ac *AnalyzeConsumer) Start(ctx context.Context) error {
	ac.logger.Info("analyze consumer starting")
	return ac.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that runs every document
// event through the engine. If db is non-nil, the document status is
// updated from PENDING to ANALYZED (or FAILED) afterwards; if events is
// non-nil, an analyze event is batched for the analytics pipeline.
func HandleMessage(engine *analyzer.Engine, db *sql.DB, events *collector.BatchCollector) kafka.MessageHandler {
	logger := slog.Default().With("component", "analyze-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		logger.Debug("processing document event",
			"doc_id", event.DocumentID,
			"corpus", event.Corpus,
		)

		start := time.Now()
		termCount, tokenCount, err := engine.AnalyzeDocument(event.DocumentID, event.Corpus, event.Title, event.Body)
		if err != nil {
			updateDocStatus(ctx, db, event.DocumentID, ingestion.StatusFailed, logger)
			return fmt.Errorf("analyzing document %s: %w", event.DocumentID, err)
		}

		updateDocStatus(ctx, db, event.DocumentID, ingestion.StatusAnalyzed, logger)

		if events != nil {
			events.Track(event.Corpus, analytics.AnalyzeEvent{
				Type:       analytics.EventAnalyzeDoc,
				Corpus:     event.Corpus,
				DocumentID: event.DocumentID,
				TermCount:  termCount,
				TokenCount: tokenCount,
				LatencyMs:  time.Since(start).Milliseconds(),
				Timestamp:  time.Now().UTC(),
			})
		}

		logger.Info("document analyzed",
			"doc_id", event.DocumentID,
			"corpus", event.Corpus,
			"distinct_terms", termCount,
		)
		return nil
	}
}

// updateDocStatus updates the document's status and analyzed_at timestamp in
// PostgreSQL, retrying transient failures. If db is nil, the update is skipped.
func updateDocStatus(ctx context.Context, db *sql.DB, docID, status string, logger *slog.Logger) {
	if db == nil {
		return
	}
	err := resilience.Retry(ctx, "document_status_update", resilience.RetryConfig{}, func() error {
		_, execErr := db.ExecContext(ctx,
			`UPDATE documents SET status = $1, analyzed_at = NOW() WHERE id = $2`,
			status, docID,
		)
		return execErr
	})
	if err != nil {
		logger.Error("failed to update document status",
			"doc_id", docID,
			"status", status,
			"error", err,
		)
	}
}
