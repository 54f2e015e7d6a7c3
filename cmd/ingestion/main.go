// Command ingestion starts the document intake HTTP service.
//
// Documents arrive via POST /api/v1/documents. Each one is validated,
// recorded in PostgreSQL with PENDING status, and announced on a Kafka topic
// for the analyzer to pick up. Unlike the other services, ingestion cannot
// run without PostgreSQL: accepting a document it cannot record would lose
// it silently.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/corpuslab/corpus-analytics-platform/internal/ingestion/handler"
	"github.com/corpuslab/corpus-analytics-platform/internal/ingestion/publisher"
	"github.com/corpuslab/corpus-analytics-platform/pkg/health"
	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
	"github.com/corpuslab/corpus-analytics-platform/pkg/postgres"
	"github.com/corpuslab/corpus-analytics-platform/pkg/service"
)

func main() {
	cfg := service.Boot()
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentCreated)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentCreated)

	h := handler.New(publisher.New(db, producer))

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.Down(err)
		}
		return health.Up()
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := service.Serve(ctx, server, cfg.Server.ShutdownTimeout.Duration); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
