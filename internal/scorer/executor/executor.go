package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/corpuslab/corpus-analytics-platform/internal/corpus"
	"github.com/corpuslab/corpus-analytics-platform/internal/correlate"
	"github.com/corpuslab/corpus-analytics-platform/internal/scorer/topk"
	"github.com/corpuslab/corpus-analytics-platform/internal/sentiment"
	"github.com/corpuslab/corpus-analytics-platform/internal/tfidf"
	"github.com/corpuslab/corpus-analytics-platform/internal/topics"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
	"github.com/corpuslab/corpus-analytics-platform/pkg/tracing"
)

type DocumentResult struct {
	Corpus     string             `json:"corpus"`
	DocumentID string             `json:"document_id"`
	Documents  int                `json:"documents"`
	Terms      []tfidf.ScoredTerm `json:"terms"`
}

type TopResult struct {
	Corpus  string             `json:"corpus"`
	Limit   int                `json:"limit"`
	Results []tfidf.ScoredTerm `json:"results"`
}

type StatsResult struct {
	Corpus           string `json:"corpus"`
	Documents        int    `json:"documents"`
	DistinctTerms    int    `json:"distinct_terms"`
	TotalOccurrences int64  `json:"total_occurrences"`
}

type SentimentResult struct {
	Corpus  string                        `json:"corpus"`
	Results []sentiment.DocumentSentiment `json:"results"`
}

type TopicsResult struct {
	Corpus     string                   `json:"corpus"`
	TopicCount int                      `json:"topic_count"`
	Topics     []topics.Topic           `json:"topics"`
	Mixtures   []topics.DocumentMixture `json:"mixtures"`
}

type CorrelationsResult struct {
	Corpus  string                  `json:"corpus"`
	Results []correlate.Correlation `json:"results"`
}

// TopicsParams carries the configured LDA defaults; Count can be overridden
// per request.
type TopicsParams struct {
	Count      int
	Iterations int
	TopTerms   int
}

// CorrelationParams bounds the co-occurrence report.
type CorrelationParams struct {
	MinDocFreq int
	MaxPairs   int
}

// Executor runs scoring and analysis operations against registered corpora.
// All term weights in its responses are rounded to 4 decimal places; the
// underlying computation is exact.
type Executor struct {
	registry  *corpus.Registry
	analyzer  *sentiment.Analyzer
	topicsCfg TopicsParams
	corrCfg   CorrelationParams
	logger    *slog.Logger
}

func New(registry *corpus.Registry, analyzer *sentiment.Analyzer, topicsCfg TopicsParams, corrCfg CorrelationParams) *Executor {
	return &Executor{
		registry:  registry,
		analyzer:  analyzer,
		topicsCfg: topicsCfg,
		corrCfg:   corrCfg,
		logger:    slog.Default().With("component", "score-executor"),
	}
}

// DocumentScores computes TF-IDF weights for every term of one document,
// scored against the whole corpus and sorted by weight descending.
func (e *Executor) DocumentScores(ctx context.Context, corpusName, docID string) (*DocumentResult, error) {
	store, err := e.lookup(corpusName)
	if err != nil {
		return nil, err
	}
	if _, ok := store.DocumentTerms(docID); !ok {
		return nil, fmt.Errorf("document %q in corpus %q: %w", docID, corpusName, apperrors.ErrDocumentNotFound)
	}

	scored, err := e.scoreAll(ctx, store)
	if err != nil {
		return nil, err
	}
	terms := make([]tfidf.ScoredTerm, 0)
	for _, st := range scored {
		if st.DocumentID == docID {
			terms = append(terms, roundScores(st))
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].TFIDF != terms[j].TFIDF {
			return terms[i].TFIDF > terms[j].TFIDF
		}
		return terms[i].Term < terms[j].Term
	})

	e.logger.Info("document scored",
		"corpus", corpusName,
		"document_id", docID,
		"terms", len(terms),
	)
	return &DocumentResult{
		Corpus:     corpusName,
		DocumentID: docID,
		Documents:  store.DocumentCount(),
		Terms:      terms,
	}, nil
}

// TopTerms returns the limit highest TF-IDF weighted (document, term) entries
// across the corpus.
func (e *Executor) TopTerms(ctx context.Context, corpusName string, limit int) (*TopResult, error) {
	store, err := e.lookup(corpusName)
	if err != nil {
		return nil, err
	}
	scored, err := e.scoreAll(ctx, store)
	if err != nil {
		return nil, err
	}
	top := topk.Select(scored, limit)
	for i := range top {
		top[i] = roundScores(top[i])
	}

	e.logger.Info("top terms computed",
		"corpus", corpusName,
		"limit", limit,
		"results", len(top),
	)
	return &TopResult{Corpus: corpusName, Limit: limit, Results: top}, nil
}

// Corpora lists every registered corpus with its vocabulary counters.
func (e *Executor) Corpora(ctx context.Context) []StatsResult {
	stores := e.registry.All()
	results := make([]StatsResult, 0, len(stores))
	for _, store := range stores {
		stats := store.Stats()
		results = append(results, StatsResult{
			Corpus:           store.Name(),
			Documents:        stats.Documents,
			DistinctTerms:    stats.DistinctTerms,
			TotalOccurrences: stats.TotalOccurrences,
		})
	}
	return results
}

// CorpusStats reports corpus vocabulary counters.
func (e *Executor) CorpusStats(ctx context.Context, corpusName string) (*StatsResult, error) {
	store, err := e.lookup(corpusName)
	if err != nil {
		return nil, err
	}
	stats := store.Stats()
	return &StatsResult{
		Corpus:           corpusName,
		Documents:        stats.Documents,
		DistinctTerms:    stats.DistinctTerms,
		TotalOccurrences: stats.TotalOccurrences,
	}, nil
}

// Sentiment joins corpus terms against the valence lexicon per document.
func (e *Executor) Sentiment(ctx context.Context, corpusName string) (*SentimentResult, error) {
	store, err := e.lookup(corpusName)
	if err != nil {
		return nil, err
	}
	_, span := tracing.StartChildSpan(ctx, "sentiment_analyze")
	results := e.analyzer.Analyze(store.TermCounts())
	span.SetAttr("corpus", corpusName)
	span.SetAttr("documents", len(results))
	span.End()

	return &SentimentResult{Corpus: corpusName, Results: results}, nil
}

// Topics fits an LDA topic model over the corpus. topicCount overrides the
// configured default when positive.
func (e *Executor) Topics(ctx context.Context, corpusName string, topicCount int) (*TopicsResult, error) {
	store, err := e.lookup(corpusName)
	if err != nil {
		return nil, err
	}
	k := e.topicsCfg.Count
	if topicCount > 0 {
		k = topicCount
	}
	modeler := topics.NewModeler(k, e.topicsCfg.Iterations, e.topicsCfg.TopTerms)

	_, span := tracing.StartChildSpan(ctx, "topics_fit")
	result, err := modeler.Fit(store.TermCounts())
	span.SetAttr("corpus", corpusName)
	span.SetAttr("topic_count", k)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("fitting topics for corpus %q: %w", corpusName, err)
	}

	e.logger.Info("topics fitted",
		"corpus", corpusName,
		"topic_count", result.TopicCount,
		"documents", len(result.Mixtures),
	)
	return &TopicsResult{
		Corpus:     corpusName,
		TopicCount: result.TopicCount,
		Topics:     result.Topics,
		Mixtures:   result.Mixtures,
	}, nil
}

// Correlations reports the strongest term co-occurrence pairs by phi
// coefficient. limit overrides the configured pair cap when positive.
func (e *Executor) Correlations(ctx context.Context, corpusName string, limit int) (*CorrelationsResult, error) {
	store, err := e.lookup(corpusName)
	if err != nil {
		return nil, err
	}
	maxPairs := e.corrCfg.MaxPairs
	if limit > 0 && limit < maxPairs {
		maxPairs = limit
	}

	counter := correlate.NewCounter()
	for _, docID := range store.Documents() {
		records, _ := store.DocumentTerms(docID)
		terms := make([]string, 0, len(records))
		for _, rec := range records {
			terms = append(terms, rec.Term)
		}
		counter.Observe(terms)
	}
	pairs := counter.TopPairs(maxPairs, e.corrCfg.MinDocFreq)
	for i := range pairs {
		pairs[i].Phi = round4(pairs[i].Phi)
		pairs[i].PMI = round4(pairs[i].PMI)
	}

	e.logger.Info("correlations computed",
		"corpus", corpusName,
		"pairs", len(pairs),
	)
	return &CorrelationsResult{Corpus: corpusName, Results: pairs}, nil
}

func (e *Executor) lookup(corpusName string) (*corpus.Store, error) {
	store, ok := e.registry.Get(corpusName)
	if !ok {
		return nil, fmt.Errorf("corpus %q: %w", corpusName, apperrors.ErrCorpusNotFound)
	}
	return store, nil
}

func (e *Executor) scoreAll(ctx context.Context, store *corpus.Store) ([]tfidf.ScoredTerm, error) {
	_, span := tracing.StartChildSpan(ctx, "tfidf_score")
	records := store.TermCounts()
	scored, err := tfidf.Score(records)
	span.SetAttr("records", len(records))
	span.End()
	if err != nil {
		return nil, fmt.Errorf("scoring corpus: %w", err)
	}
	return scored, nil
}

func roundScores(st tfidf.ScoredTerm) tfidf.ScoredTerm {
	st.TF = round4(st.TF)
	st.IDF = round4(st.IDF)
	st.TFIDF = round4(st.TFIDF)
	return st
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
