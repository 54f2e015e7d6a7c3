// Command scorer starts the corpus scoring HTTP service.
//
// The scorer serves TF-IDF scores and the statistical reports built on them
// (top terms, corpus stats, sentiment, topics, term correlations) from an
// in-memory corpus registry. The registry is populated from the analyzer's
// snapshots at startup and kept fresh by consuming flush events from Kafka.
// Score responses are cached in Redis when it is available.
//
// Usage:
//
//	go run ./cmd/scorer [-config configs/development.yaml]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/corpuslab/corpus-analytics-platform/internal/analytics"
	"github.com/corpuslab/corpus-analytics-platform/internal/corpus"
	"github.com/corpuslab/corpus-analytics-platform/internal/scorer/cache"
	"github.com/corpuslab/corpus-analytics-platform/internal/scorer/consumer"
	"github.com/corpuslab/corpus-analytics-platform/internal/scorer/executor"
	"github.com/corpuslab/corpus-analytics-platform/internal/scorer/handler"
	"github.com/corpuslab/corpus-analytics-platform/internal/sentiment"
	"github.com/corpuslab/corpus-analytics-platform/pkg/health"
	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
	"github.com/corpuslab/corpus-analytics-platform/pkg/metrics"
	"github.com/corpuslab/corpus-analytics-platform/pkg/middleware"
	pkgredis "github.com/corpuslab/corpus-analytics-platform/pkg/redis"
	"github.com/corpuslab/corpus-analytics-platform/pkg/service"
)

func main() {
	cfg := service.Boot()
	slog.Info("starting scorer service", "port", cfg.Server.Port, "data_dir", cfg.Analyzer.DataDir)

	var m *metrics.Metrics
	var stops []func(context.Context) error
	if cfg.Metrics.Enabled {
		m = metrics.New()
		stops = append(stops, metrics.StartServer(cfg.Metrics.Port))
	}

	registry := corpus.NewRegistry()
	loaded := consumer.RecoverAll(cfg.Analyzer.DataDir, registry)
	slog.Info("corpus registry initialized", "corpora", loaded)

	var scoreCache *cache.ScoreCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, score caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		scoreCache = cache.New(redisClient, cfg.Redis)
		slog.Info("score cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL.Duration,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	collector := analytics.NewCollector(analyticsProducer, 10000)
	collector.Start(ctx)
	defer collector.Close()
	slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	// Follow analyzer flushes so freshly analyzed documents become scorable
	// without a restart.
	flushHandler := consumer.HandleMessage(cfg.Analyzer.DataDir, registry, scoreCache)
	flushConsumer := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusFlushed, flushHandler))
	go func() {
		if err := flushConsumer.Start(ctx); err != nil {
			slog.Error("flush consumer error", "error", err)
		}
	}()

	lex := sentiment.Builtin()
	if path := cfg.Scoring.Sentiment.LexiconPath; path != "" {
		loaded, err := sentiment.LoadFile(path)
		if err != nil {
			slog.Warn("failed to load sentiment lexicon, using builtin", "path", path, "error", err)
		} else {
			lex = loaded
			slog.Info("sentiment lexicon loaded", "path", path, "terms", len(loaded))
		}
	}

	exec := executor.New(registry, sentiment.NewAnalyzer(lex),
		executor.TopicsParams{
			Count:      cfg.Scoring.Topics.Count,
			Iterations: cfg.Scoring.Topics.Iterations,
			TopTerms:   cfg.Scoring.Topics.TopTerms,
		},
		executor.CorrelationParams{
			MinDocFreq: cfg.Scoring.Correlation.MinDocFreq,
			MaxPairs:   cfg.Scoring.Correlation.MaxPairs,
		},
	)
	h := handler.New(exec, scoreCache, collector, m, cfg.Scoring.DefaultLimit, cfg.Scoring.MaxLimit)

	checker := health.NewChecker()
	checker.Register("corpus_registry", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d corpora loaded", len(registry.Names())),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.Degraded("not configured")
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.Degraded(err.Error())
		}
		return health.Up()
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/corpora", h.Corpora)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/documents/{id}/scores", h.DocumentScores)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/top", h.TopTerms)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/stats", h.CorpusStats)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/sentiment", h.Sentiment)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/topics", h.Topics)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/correlations", h.Correlations)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Trace(cfg.Tracing)(chain)
	chain = middleware.Timeout(cfg.Scoring.RequestTimeout.Duration)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	slog.Info("scorer service listening", "addr", server.Addr)
	if err := service.Serve(ctx, server, cfg.Server.ShutdownTimeout.Duration, stops...); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("scorer service stopped")
}
