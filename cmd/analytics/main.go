// Command analytics starts the standalone analytics aggregation service.
//
// It consumes scoring and analyze events from Kafka, aggregates them in
// memory (request totals, latency percentiles, cache hit rate, top corpora),
// persists periodic snapshots to PostgreSQL, and serves the aggregates over
// HTTP at GET /api/v1/analytics and over the internal RPC layer for the
// gateway.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corpuslab/corpus-analytics-platform/internal/analytics"
	"github.com/corpuslab/corpus-analytics-platform/internal/analytics/aggregator"
	"github.com/corpuslab/corpus-analytics-platform/internal/analytics/rpc"
	"github.com/corpuslab/corpus-analytics-platform/pkg/grpc"
	"github.com/corpuslab/corpus-analytics-platform/pkg/health"
	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
	"github.com/corpuslab/corpus-analytics-platform/pkg/metrics"
	"github.com/corpuslab/corpus-analytics-platform/pkg/middleware"
	"github.com/corpuslab/corpus-analytics-platform/pkg/postgres"
	"github.com/corpuslab/corpus-analytics-platform/pkg/service"
)

// main boots the standalone analytics service: it creates a Kafka consumer
// for analytics events, starts the in-memory aggregator, wires snapshot
// persistence and the RPC server, and serves the HTTP API. Graceful shutdown
// is triggered by SIGINT/SIGTERM.
func main() {
	cfg := service.Boot()
	slog.Info("starting analytics service", "port", cfg.Server.Port, "rpc_port", cfg.Analytics.RPCPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This service has no scoring path of its own, so it exposes only the
	// default registry (runtime and process metrics) on the dedicated port.
	var stops []func(context.Context) error
	if cfg.Metrics.Enabled {
		stops = append(stops, metrics.StartServer(cfg.Metrics.Port))
	}

	// The consumer needs the handler and the handler needs the aggregator,
	// which owns the consumer. The closure defers the aggregator lookup to
	// message time, after the assignment below.
	var agg *analytics.Aggregator
	eventsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents,
		func(ctx context.Context, key, value []byte) error {
			return analytics.HandleEvent(agg)(ctx, key, value)
		})
	agg = analytics.NewAggregator(eventsConsumer)

	// Snapshot persistence is optional; the service aggregates in memory
	// without it.
	var store *aggregator.Store
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshot persistence disabled", "error", err)
	} else {
		defer db.Close()
		if cfg.Metrics.Enabled {
			prometheus.MustRegister(db.MetricsCollector())
		}
		store = aggregator.NewStore(db)
		if prev, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not load latest snapshot, starting fresh", "error", err)
		} else if prev != nil {
			agg.Restore(*prev)
		}
		store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval.Duration)
		slog.Info("snapshot persistence enabled", "interval", cfg.Analytics.SnapshotInterval.Duration)
	}

	// Consume only after any snapshot restore, so live events never race
	// the reseed.
	go func() {
		if err := agg.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	// Internal RPC for the gateway.
	rpcServer := grpc.NewServer()
	rpc.Register(rpcServer, agg, store)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Analytics.RPCPort)
		slog.Info("analytics rpc listening", "addr", addr)
		if err := rpcServer.Serve(addr); err != nil {
			slog.Error("rpc server error", "error", err)
		}
	}()
	defer rpcServer.Stop()

	// HTTP API. A nil *Store must stay a nil interface, or the handler's
	// disabled check never fires.
	var lister analytics.SnapshotLister
	if store != nil {
		lister = store
	}
	analyticsHandler := analytics.NewHandler(agg, lister)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if db == nil {
			return health.Degraded("not configured")
		}
		if err := db.Ping(ctx); err != nil {
			return health.Degraded(err.Error())
		}
		return health.Up()
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsHandler.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := service.Serve(ctx, server, cfg.Server.ShutdownTimeout.Duration, stops...); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
