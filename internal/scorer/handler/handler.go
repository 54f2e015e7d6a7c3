package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/internal/analytics"
	"github.com/corpuslab/corpus-analytics-platform/internal/scorer/cache"
	"github.com/corpuslab/corpus-analytics-platform/internal/scorer/executor"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
	"github.com/corpuslab/corpus-analytics-platform/pkg/logger"
	"github.com/corpuslab/corpus-analytics-platform/pkg/metrics"
	"github.com/corpuslab/corpus-analytics-platform/pkg/middleware"
)

type Handler struct {
	executor     *executor.Executor
	cache        *cache.ScoreCache
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// New builds the scoring handler. scoreCache, collector, and m are all
// nilable: caching, usage events, and Prometheus recording degrade to no-ops
// independently.
func New(exec *executor.Executor, scoreCache *cache.ScoreCache, collector *analytics.Collector, m *metrics.Metrics, defaultLimit, maxLimit int) *Handler {
	return &Handler{
		executor:     exec,
		cache:        scoreCache,
		collector:    collector,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       slog.Default().With("component", "score-handler"),
	}
}

func (h *Handler) Corpora(w http.ResponseWriter, r *http.Request) {
	results := h.executor.Corpora(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]any{"corpora": results})
}

func (h *Handler) DocumentScores(w http.ResponseWriter, r *http.Request) {
	corpus := r.PathValue("corpus")
	docID := r.PathValue("id")
	op := fmt.Sprintf("document:%s", docID)

	serveCached(h, w, r, corpus, analytics.KindDocument, op,
		func(res *executor.DocumentResult) int { return len(res.Terms) },
		func() (*executor.DocumentResult, error) {
			return h.executor.DocumentScores(r.Context(), corpus, docID)
		})
}

func (h *Handler) TopTerms(w http.ResponseWriter, r *http.Request) {
	corpus := r.PathValue("corpus")
	limit, err := h.parseCount(r, "limit", h.defaultLimit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	op := fmt.Sprintf("top:limit=%d", limit)

	serveCached(h, w, r, corpus, analytics.KindTop, op,
		func(res *executor.TopResult) int { return len(res.Results) },
		func() (*executor.TopResult, error) {
			return h.executor.TopTerms(r.Context(), corpus, limit)
		})
}

func (h *Handler) CorpusStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	corpus := r.PathValue("corpus")
	result, err := h.executor.CorpusStats(r.Context(), corpus)
	if err != nil {
		h.writeExecError(w, r, corpus, err)
		return
	}
	h.track(r, corpus, analytics.KindStats, result.Documents, false, time.Since(start).Milliseconds())
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Sentiment(w http.ResponseWriter, r *http.Request) {
	corpus := r.PathValue("corpus")

	serveCached(h, w, r, corpus, analytics.KindSentiment, "sentiment",
		func(res *executor.SentimentResult) int { return len(res.Results) },
		func() (*executor.SentimentResult, error) {
			return h.executor.Sentiment(r.Context(), corpus)
		})
}

func (h *Handler) Topics(w http.ResponseWriter, r *http.Request) {
	corpus := r.PathValue("corpus")
	k, err := h.parseCount(r, "k", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	op := fmt.Sprintf("topics:k=%d", k)

	serveCached(h, w, r, corpus, analytics.KindTopics, op,
		func(res *executor.TopicsResult) int { return len(res.Mixtures) },
		func() (*executor.TopicsResult, error) {
			return h.executor.Topics(r.Context(), corpus, k)
		})
}

func (h *Handler) Correlations(w http.ResponseWriter, r *http.Request) {
	corpus := r.PathValue("corpus")
	limit, err := h.parseCount(r, "limit", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	op := fmt.Sprintf("correlations:limit=%d", limit)

	serveCached(h, w, r, corpus, analytics.KindCorrelations, op,
		func(res *executor.CorrelationsResult) int { return len(res.Results) },
		func() (*executor.CorrelationsResult, error) {
			return h.executor.Correlations(r.Context(), corpus, limit)
		})
}

// serveCached runs one cacheable scoring operation end to end: cache lookup,
// compute on miss, analytics tracking, response writing. rows extracts the
// result row count for the usage event.
func serveCached[T any](h *Handler, w http.ResponseWriter, r *http.Request, corpus, kind, op string, rows func(T) int, computeFn func() (T, error)) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	result, cacheHit, err := cache.GetOrCompute(h.cache, ctx, corpus, op, computeFn)
	if err != nil {
		h.writeExecError(w, r, corpus, err)
		return
	}

	latencyMs := time.Since(start).Milliseconds()
	resultRows := rows(result)
	log.Info("scoring request completed",
		"corpus", corpus,
		"kind", kind,
		"rows", resultRows,
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	h.track(r, corpus, kind, resultRows, cacheHit, latencyMs)
	h.writeJSON(w, http.StatusOK, result)
}

// track records one completed scoring request into both sinks: the Kafka
// usage event for the analytics service and the Prometheus collectors for
// scraping. Either sink may be absent.
func (h *Handler) track(r *http.Request, corpus, kind string, rows int, cacheHit bool, latencyMs int64) {
	if h.metrics != nil {
		h.metrics.ScoreRequestsTotal.WithLabelValues(kind).Inc()
		h.metrics.ScoreResultRows.Observe(float64(rows))
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		h.metrics.ScoreLatency.WithLabelValues(cacheStatus).Observe(float64(latencyMs) / 1000)
		// Hit/miss counters only move when a cache actually exists;
		// otherwise every request would count as a miss.
		if h.cache != nil {
			if cacheHit {
				h.metrics.CacheHitsTotal.Inc()
			} else {
				h.metrics.CacheMissesTotal.Inc()
			}
		}
	}

	if h.collector == nil {
		return
	}
	eventType := analytics.EventCacheMiss
	if cacheHit {
		eventType = analytics.EventCacheHit
	}
	if rows == 0 {
		eventType = analytics.EventEmptyCorpus
	}
	h.collector.Track(analytics.ScoreEvent{
		Type:      eventType,
		Corpus:    corpus,
		Kind:      kind,
		Records:   rows,
		Returned:  rows,
		LatencyMs: latencyMs,
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	corpus := r.URL.Query().Get("corpus")
	var err error
	if corpus != "" {
		err = h.cache.InvalidateCorpus(r.Context(), corpus)
	} else {
		err = h.cache.InvalidateAll(r.Context())
	}
	if err != nil {
		h.logger.Error("cache invalidation failed", "corpus", corpus, "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "corpus": corpus})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) parseCount(r *http.Request, param string, def int) (int, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", param)
	}
	if parsed > h.maxLimit {
		parsed = h.maxLimit
	}
	return parsed, nil
}

// writeExecError maps executor error sentinels to HTTP status codes. Client
// errors carry the underlying message; server errors are logged and masked.
func (h *Handler) writeExecError(w http.ResponseWriter, r *http.Request, corpus string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("scoring request failed",
			"corpus", corpus,
			"error", err,
		)
		h.writeError(w, status, "scoring failed")
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
