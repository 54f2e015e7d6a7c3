// Command gateway starts the API gateway service.
//
// The gateway is the single entry point for external clients. It authenticates
// requests via API keys (SHA-256 validated against PostgreSQL), applies
// per-key rate limiting and scope checks, and proxies requests to the
// ingestion and scorer services. Analytics summaries are fetched from the
// analytics service over the internal RPC layer behind a circuit breaker.
// It also exposes admin endpoints for API key management and direct
// document-retrieval endpoints backed by PostgreSQL.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corpuslab/corpus-analytics-platform/internal/auth/apikey"
	"github.com/corpuslab/corpus-analytics-platform/internal/auth/ratelimit"
	gwhandler "github.com/corpuslab/corpus-analytics-platform/internal/gateway/handler"
	"github.com/corpuslab/corpus-analytics-platform/internal/gateway/router"
	"github.com/corpuslab/corpus-analytics-platform/pkg/metrics"
	"github.com/corpuslab/corpus-analytics-platform/pkg/postgres"
	"github.com/corpuslab/corpus-analytics-platform/pkg/service"
)

func main() {
	cfg := service.Boot()
	slog.Info("starting gateway service",
		"port", cfg.Gateway.Port,
		"ingestion_url", cfg.Gateway.IngestionURL,
		"scorer_url", cfg.Gateway.ScorerURL,
		"analytics_rpc", cfg.Gateway.AnalyticsRPCAddr,
	)

	var m *metrics.Metrics
	var stops []func(context.Context) error
	if cfg.Metrics.Enabled {
		m = metrics.New()
		stops = append(stops, metrics.StartServer(cfg.Metrics.Port))
	}

	// PostgreSQL backs API key validation and document retrieval; the
	// gateway cannot start without it.
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")
	if cfg.Metrics.Enabled {
		prometheus.MustRegister(db.MetricsCollector())
	}

	validator := apikey.NewValidator(db)
	limiter := ratelimit.New(time.Minute)
	defer limiter.Close()

	h := gwhandler.New(gwhandler.Config{
		IngestionURL:     cfg.Gateway.IngestionURL,
		ScorerURL:        cfg.Gateway.ScorerURL,
		AnalyticsRPCAddr: cfg.Gateway.AnalyticsRPCAddr,
	}, db, validator, m)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler:      router.New(h, validator, limiter, m),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("gateway service listening", "addr", server.Addr)
	if err := service.Serve(ctx, server, cfg.Server.ShutdownTimeout.Duration, stops...); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway service stopped")
}
