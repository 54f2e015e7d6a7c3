// Package metrics defines the Prometheus collectors shared across the
// platform's services and the HTTP plumbing for scraping them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the platform records. Services hold one
// instance and update only the fields relevant to them; the rest simply
// never move.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ScoreRequestsTotal   *prometheus.CounterVec
	ScoreLatency         *prometheus.HistogramVec
	ScoreResultRows      prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsAnalyzedTotal    prometheus.Counter
	CorpusFlushesTotal   *prometheus.CounterVec
	CorpusDocCount       *prometheus.GaugeVec
	ActiveCorpora        prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New builds the collectors and registers them on the default registry,
// which is what Handler and StartServer scrape. Call it once per process;
// a second call panics on duplicate registration.
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),

		HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		ScoreRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "score_requests_total",
			Help: "Total scoring requests by kind (document, top, stats, sentiment, topics, correlations).",
		}, []string{"kind"}),

		ScoreLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "score_latency_seconds",
			Help:    "Scoring request latency in seconds, labeled by cache outcome.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"cache_status"}),

		ScoreResultRows: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "score_result_rows",
			Help:    "Number of rows returned per scoring request.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
		}),

		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of score cache hits.",
		}),

		CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of score cache misses.",
		}),

		DocsAnalyzedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docs_analyzed_total",
			Help: "Total documents analyzed into corpora.",
		}),

		CorpusFlushesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corpus_flushes_total",
			Help: "Total corpus snapshot flush operations by status.",
		}, []string{"status"}),

		CorpusDocCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "corpus_document_count",
			Help: "Number of documents per corpus.",
		}, []string{"corpus"}),

		ActiveCorpora: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "active_corpora",
			Help: "Number of corpora currently registered.",
		}),

		CircuitBreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}
}

// Handler returns the scrape handler for the default registry, for services
// that mount /metrics on their main mux.
func Handler() http.Handler {
	return promhttp.Handler()
}
