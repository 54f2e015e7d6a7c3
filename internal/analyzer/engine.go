// Package analyzer maintains the per-corpus term stores on the write path:
// it tokenizes incoming documents, folds their term counts into the corpus
// registry, persists dirty corpora as snapshots on a timer, and announces
// each flush on Kafka so scorers can reload.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/internal/corpus"
	"github.com/corpuslab/corpus-analytics-platform/internal/corpus/snapshot"
	"github.com/corpuslab/corpus-analytics-platform/internal/tokenizer"
	"github.com/corpuslab/corpus-analytics-platform/pkg/config"
	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
	"github.com/corpuslab/corpus-analytics-platform/pkg/metrics"
)

type Engine struct {
	registry *corpus.Registry
	tok      tokenizer.Tokenizer
	writer   *snapshot.Writer
	producer *kafka.Producer
	metrics  *metrics.Metrics
	cfg      config.AnalyzerConfig
	logger   *slog.Logger

	mu        sync.Mutex
	dirty     map[string]bool
	sequences map[string]uint64
}

// NewEngine builds the tokenizer chain from cfg, prepares the snapshot
// directory, and recovers every corpus that already has a snapshot on disk.
// producer publishes flush events and may be nil, as may m.
func NewEngine(cfg config.AnalyzerConfig, producer *kafka.Producer, m *metrics.Metrics) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot data directory: %w", err)
	}
	e := &Engine{
		registry: corpus.NewRegistry(),
		tok: tokenizer.New(tokenizer.Config{
			MinTokenLength: cfg.MinTokenLength,
			Stemming:       cfg.Stemming,
			NGramSize:      cfg.NGramSize,
			ExtraStopWords: cfg.ExtraStopWords,
		}),
		writer:    snapshot.NewWriter(cfg.DataDir),
		producer:  producer,
		metrics:   m,
		cfg:       cfg,
		logger:    slog.Default().With("component", "analyzer"),
		dirty:     make(map[string]bool),
		sequences: make(map[string]uint64),
	}
	e.recoverSnapshots()
	return e, nil
}

// Registry exposes the corpus stores the engine maintains.
func (e *Engine) Registry() *corpus.Registry {
	return e.registry
}

// AnalyzeDocument tokenizes the document, stores its term counts in the
// named corpus, and marks the corpus dirty for the next flush. A repeated
// document ID replaces the earlier version. It returns the number of
// distinct terms and the total token count.
func (e *Engine) AnalyzeDocument(docID, corpusName, title, body string) (termCount, tokenCount int, err error) {
	tokens := e.tok.Tokenize(title + " " + body)
	records := tokenizer.Count(docID, tokens)

	store := e.registry.GetOrCreate(corpusName)
	if err := store.AddDocument(docID, records); err != nil {
		return 0, 0, fmt.Errorf("adding document %s to corpus %s: %w", docID, corpusName, err)
	}

	e.mu.Lock()
	e.dirty[corpusName] = true
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.DocsAnalyzedTotal.Inc()
		e.metrics.CorpusDocCount.WithLabelValues(corpusName).Set(float64(store.DocumentCount()))
		e.metrics.ActiveCorpora.Set(float64(len(e.registry.Names())))
	}
	e.logger.Debug("document analyzed in memory",
		"doc_id", docID,
		"corpus", corpusName,
		"distinct_terms", len(records),
		"token_count", len(tokens),
	)
	return len(records), len(tokens), nil
}

// FlushCorpus writes the named corpus to a new snapshot and publishes a
// FlushEvent. Empty or unknown corpora are skipped without error.
func (e *Engine) FlushCorpus(ctx context.Context, name string) error {
	store, ok := e.registry.Get(name)
	if !ok {
		return nil
	}
	docs := store.Export()
	if len(docs) == 0 {
		return nil
	}

	e.mu.Lock()
	seq := e.sequences[name] + 1
	e.mu.Unlock()

	snapName, err := e.writer.Write(name, seq, docs)
	if err != nil {
		if e.metrics != nil {
			e.metrics.CorpusFlushesTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("writing snapshot for corpus %s: %w", name, err)
	}
	snapPath := filepath.Join(e.cfg.DataDir, name, snapName)

	e.mu.Lock()
	e.sequences[name] = seq
	delete(e.dirty, name)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.CorpusFlushesTotal.WithLabelValues("ok").Inc()
	}
	e.logger.Info("corpus flushed",
		"corpus", name,
		"sequence", seq,
		"documents", len(docs),
		"snapshot", snapName,
	)

	if e.producer == nil {
		return nil
	}
	event := FlushEvent{
		Corpus:       name,
		Sequence:     seq,
		Documents:    len(docs),
		SnapshotPath: snapPath,
		FlushedAt:    time.Now().UTC(),
	}
	if err := e.producer.Publish(ctx, kafka.Event{Key: name, Value: event}); err != nil {
		// The snapshot is durable; scorers catch up on the next flush event.
		e.logger.Error("failed to publish flush event",
			"corpus", name,
			"sequence", seq,
			"error", err,
		)
	}
	return nil
}

// FlushDirty flushes every corpus modified since its last snapshot.
func (e *Engine) FlushDirty(ctx context.Context) {
	e.mu.Lock()
	names := make([]string, 0, len(e.dirty))
	for name := range e.dirty {
		names = append(names, name)
	}
	e.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		if err := e.FlushCorpus(ctx, name); err != nil {
			e.logger.Error("corpus flush failed", "corpus", name, "error", err)
		}
	}
}

// StartFlushLoop flushes dirty corpora every cfg.FlushInterval until ctx is
// cancelled, then performs a final flush so no analyzed document is lost.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval.Duration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				e.FlushDirty(flushCtx)
				cancel()
				return
			case <-ticker.C:
				e.FlushDirty(ctx)
			}
		}
	}()
}

// Close flushes any remaining dirty corpora.
func (e *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.FlushDirty(ctx)
	return nil
}

// recoverSnapshots reloads the newest readable snapshot of every corpus
// under the data directory. Unreadable corpora are skipped so one bad
// snapshot never blocks startup.
func (e *Engine) recoverSnapshots() {
	names := snapshot.Corpora(e.cfg.DataDir)
	loaded := 0
	for _, name := range names {
		docs, seq, err := snapshot.LoadLatest(e.cfg.DataDir, name)
		if err != nil {
			e.logger.Error("failed to load snapshot, skipping corpus",
				"corpus", name,
				"error", err,
			)
			continue
		}
		store := e.registry.GetOrCreate(name)
		store.Import(docs)
		e.mu.Lock()
		e.sequences[name] = seq
		e.mu.Unlock()
		loaded++
		if e.metrics != nil {
			e.metrics.CorpusDocCount.WithLabelValues(name).Set(float64(store.DocumentCount()))
		}
		e.logger.Info("recovered corpus from snapshot",
			"corpus", name,
			"sequence", seq,
			"documents", store.DocumentCount(),
		)
	}
	if e.metrics != nil {
		e.metrics.ActiveCorpora.Set(float64(loaded))
	}
	e.logger.Info("snapshot recovery complete", "corpora_loaded", loaded)
}
