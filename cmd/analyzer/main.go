// Command analyzer starts the corpus analyzer service.
//
// The analyzer consumes document-created events from Kafka, tokenizes each
// document, folds the term counts into its in-memory corpus registry, and
// periodically flushes dirty corpora to snapshot files on disk. Every flush
// is announced on a Kafka topic so scorer instances reload the corpus.
// Per-document analyze events are reported to the analytics pipeline in
// batches.
//
// Usage:
//
//	go run ./cmd/analyzer [-config configs/development.yaml]
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corpuslab/corpus-analytics-platform/internal/analytics/collector"
	"github.com/corpuslab/corpus-analytics-platform/internal/analyzer"
	"github.com/corpuslab/corpus-analytics-platform/internal/analyzer/consumer"
	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
	"github.com/corpuslab/corpus-analytics-platform/pkg/metrics"
	"github.com/corpuslab/corpus-analytics-platform/pkg/postgres"
	"github.com/corpuslab/corpus-analytics-platform/pkg/service"
)

func main() {
	cfg := service.Boot()
	slog.Info("starting analyzer service",
		"data_dir", cfg.Analyzer.DataDir,
		"flush_interval", cfg.Analyzer.FlushInterval.Duration,
	)

	var m *metrics.Metrics
	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		m = metrics.New()
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	// PostgreSQL is used only for document status updates; the analyzer keeps
	// working without it.
	var statusDB *sql.DB
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, document status updates disabled", "error", err)
	} else {
		defer db.Close()
		statusDB = db.DB
		if cfg.Metrics.Enabled {
			prometheus.MustRegister(db.MetricsCollector())
		}
		slog.Info("connected to postgres")
	}

	flushProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusFlushed)
	defer flushProducer.Close()

	engine, err := analyzer.NewEngine(cfg.Analyzer, flushProducer, m)
	if err != nil {
		slog.Error("failed to create analyzer engine", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.StartFlushLoop(ctx)
	slog.Info("flush loop started")

	eventsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer eventsProducer.Close()
	events := collector.NewBatchCollector(eventsProducer, cfg.Analytics.BatchSize, cfg.Analytics.BatchInterval.Duration)
	events.Start(ctx)
	defer events.Close()

	handler := consumer.HandleMessage(engine, statusDB, events)
	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentCreated, handler)
	analyzeConsumer := consumer.New(kafkaConsumer)

	slog.Info("analyzer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentCreated,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := analyzeConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing dirty corpora before shutdown")
	if err := engine.Close(); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	if stopMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		if err := stopMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
		cancel()
	}

	slog.Info("analyzer service stopped")
}
