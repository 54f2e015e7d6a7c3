package analytics

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
)

// latencyWindowSize bounds how many latency samples the aggregator keeps.
// Percentiles describe the most recent window, not process lifetime, so
// memory stays flat however long the service runs.
const latencyWindowSize = 10000

// AggregatedStats is the aggregator's externally visible state. It is what
// the stats RPC returns and what snapshots persist, so the field set and
// JSON tags are part of the wire format.
type AggregatedStats struct {
	TotalScoreRequests int64   `json:"total_score_requests"`
	TotalDocsAnalyzed  int64   `json:"total_docs_analyzed"`
	CacheHits          int64   `json:"cache_hits"`
	CacheMisses        int64   `json:"cache_misses"`
	EmptyCorpusCount   int64   `json:"empty_corpus_count"`
	AvgLatencyMs       float64 `json:"avg_latency_ms"`
	P50LatencyMs       int64   `json:"p50_latency_ms"`
	P95LatencyMs       int64   `json:"p95_latency_ms"`
	P99LatencyMs       int64   `json:"p99_latency_ms"`

	TopCorpora        []CorpusCount    `json:"top_corpora"`
	EmptyCorpora      []CorpusCount    `json:"empty_corpora"`
	RequestsByKind    map[string]int64 `json:"requests_by_kind"`
	RequestsPerMinute float64          `json:"requests_per_minute"`
}

// CorpusCount pairs a corpus name with how often it appeared.
type CorpusCount struct {
	Corpus string `json:"corpus"`
	Count  int64  `json:"count"`
}

// Aggregator folds the analytics event stream into running totals. Counters
// are atomics so the hot path mostly avoids the mutex; the mutex guards the
// maps and the latency window.
type Aggregator struct {
	totalRequests atomic.Int64
	totalAnalyzed atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	emptyResults  atomic.Int64

	mu           sync.RWMutex
	latencies    latencyRing
	corpusCounts map[string]int64
	kindCounts   map[string]int64
	emptyCorpora map[string]int64
	restoredBase int64

	startTime time.Time
	consumer  *kafka.Consumer
	logger    *slog.Logger
}

func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:    latencyRing{buf: make([]int64, latencyWindowSize)},
		corpusCounts: make(map[string]int64),
		kindCounts:   make(map[string]int64),
		emptyCorpora: make(map[string]int64),
		startTime:    time.Now(),
		consumer:     consumer,
		logger:       slog.Default().With("component", "analytics-aggregator"),
	}
}

// Restore seeds the aggregator from a persisted snapshot so lifetime totals
// survive a restart. Individual latency samples are not persisted, so the
// percentiles rebuild from live traffic only. Call this before Start; it is
// not safe to run concurrently with event handling.
func (a *Aggregator) Restore(stats AggregatedStats) {
	a.totalRequests.Store(stats.TotalScoreRequests)
	a.totalAnalyzed.Store(stats.TotalDocsAnalyzed)
	a.cacheHits.Store(stats.CacheHits)
	a.cacheMisses.Store(stats.CacheMisses)
	a.emptyResults.Store(stats.EmptyCorpusCount)

	a.mu.Lock()
	// Restored requests are excluded from the requests-per-minute rate,
	// which describes this process, not the lifetime of the corpus.
	a.restoredBase = stats.TotalScoreRequests
	for _, c := range stats.TopCorpora {
		a.corpusCounts[c.Corpus] = c.Count
	}
	for _, c := range stats.EmptyCorpora {
		a.emptyCorpora[c.Corpus] = c.Count
	}
	for kind, n := range stats.RequestsByKind {
		a.kindCounts[kind] = n
	}
	a.mu.Unlock()

	a.logger.Info("restored state from snapshot",
		"total_score_requests", stats.TotalScoreRequests,
		"total_docs_analyzed", stats.TotalDocsAnalyzed)
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// eventProbe decodes just enough of an event to route it. Score and analyze
// events share a topic, distinguished by their type field.
type eventProbe struct {
	Type EventType `json:"type"`
}

// HandleEvent returns the Kafka handler feeding the aggregator. Undecodable
// payloads are logged and dropped: returning an error would wedge the
// consumer group on a poison message.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		probe, err := kafka.DecodeJSON[eventProbe](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event",
				"error", err,
			)
			return nil
		}
		switch probe.Type {
		case EventAnalyzeDoc:
			event, err := kafka.DecodeJSON[AnalyzeEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode analyze event", "error", err)
				return nil
			}
			agg.recordAnalyzeEvent(event)
		default:
			event, err := kafka.DecodeJSON[ScoreEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode score event", "error", err)
				return nil
			}
			agg.recordScoreEvent(event)
		}
		return nil
	}
}

func (a *Aggregator) recordScoreEvent(event ScoreEvent) {
	a.totalRequests.Add(1)

	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}

	if event.Records == 0 {
		a.emptyResults.Add(1)
	}

	a.mu.Lock()
	a.latencies.add(event.LatencyMs)
	a.corpusCounts[event.Corpus]++
	a.kindCounts[event.Kind]++
	if event.Records == 0 {
		a.emptyCorpora[event.Corpus]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) recordAnalyzeEvent(event AnalyzeEvent) {
	a.totalAnalyzed.Add(1)
}

// Stats reports the current aggregate view. Latency figures cover the most
// recent window of requests; everything else is lifetime (including
// restored totals).
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalScoreRequests: a.totalRequests.Load(),
		TotalDocsAnalyzed:  a.totalAnalyzed.Load(),
		CacheHits:          a.cacheHits.Load(),
		CacheMisses:        a.cacheMisses.Load(),
		EmptyCorpusCount:   a.emptyResults.Load(),
	}
	if sorted := a.latencies.snapshot(); len(sorted) > 0 {
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopCorpora = topN(a.corpusCounts, 10)
	stats.EmptyCorpora = topN(a.emptyCorpora, 10)
	stats.RequestsByKind = make(map[string]int64, len(a.kindCounts))
	for kind, count := range a.kindCounts {
		stats.RequestsByKind[kind] = count
	}
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.RequestsPerMinute = float64(stats.TotalScoreRequests-a.restoredBase) / elapsed
	}

	return stats
}

// latencyRing holds the newest observations in a fixed-size circular
// buffer. Order does not matter to percentiles, so snapshot returns the
// filled portion unordered.
type latencyRing struct {
	buf  []int64
	next int
	n    int
}

func (r *latencyRing) add(v int64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

func (r *latencyRing) snapshot() []int64 {
	out := make([]int64, r.n)
	copy(out, r.buf[:r.n])
	return out
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[min(len(sorted)*pct/100, len(sorted)-1)]
}

// topN returns the n highest counts, ties broken by name so repeated calls
// over the same state produce the same order.
func topN(counts map[string]int64, n int) []CorpusCount {
	out := make([]CorpusCount, 0, len(counts))
	for corpus, count := range counts {
		out = append(out, CorpusCount{Corpus: corpus, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Corpus < out[j].Corpus
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
