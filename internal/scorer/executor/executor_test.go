package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/corpuslab/corpus-analytics-platform/internal/corpus"
	"github.com/corpuslab/corpus-analytics-platform/internal/sentiment"
	"github.com/corpuslab/corpus-analytics-platform/internal/tfidf"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
)

func newTestExecutor(t *testing.T) (*Executor, *corpus.Registry) {
	t.Helper()
	registry := corpus.NewRegistry()
	exec := New(registry, sentiment.NewAnalyzer(nil),
		TopicsParams{Count: 2, Iterations: 30, TopTerms: 5},
		CorrelationParams{MinDocFreq: 1, MaxPairs: 50},
	)
	return exec, registry
}

func addDocument(t *testing.T, store *corpus.Store, docID string, counts map[string]int) {
	t.Helper()
	records := make([]tfidf.TermCount, 0, len(counts))
	for term, count := range counts {
		records = append(records, tfidf.TermCount{DocumentID: docID, Term: term, Count: count})
	}
	if err := store.AddDocument(docID, records); err != nil {
		t.Fatalf("AddDocument(%s): %v", docID, err)
	}
}

// seedReference loads the two-document corpus used throughout: doc-a has
// cat×3 dog×1, doc-b has dog×2 fox×1.
func seedReference(t *testing.T, registry *corpus.Registry) {
	t.Helper()
	store := registry.GetOrCreate("reviews")
	addDocument(t, store, "doc-a", map[string]int{"cat": 3, "dog": 1})
	addDocument(t, store, "doc-b", map[string]int{"dog": 2, "fox": 1})
}

// TestDocumentScores verifies per-document weights against hand-computed
// values, rounded to 4 decimals, sorted by weight descending.
func TestDocumentScores(t *testing.T) {
	exec, registry := newTestExecutor(t)
	seedReference(t, registry)

	result, err := exec.DocumentScores(context.Background(), "reviews", "doc-a")
	if err != nil {
		t.Fatalf("DocumentScores: %v", err)
	}
	if result.Corpus != "reviews" || result.DocumentID != "doc-a" {
		t.Errorf("identity = %s/%s, want reviews/doc-a", result.Corpus, result.DocumentID)
	}
	if result.Documents != 2 {
		t.Errorf("Documents = %d, want 2", result.Documents)
	}
	if len(result.Terms) != 2 {
		t.Fatalf("len(Terms) = %d, want 2", len(result.Terms))
	}

	// cat: tf=0.75, idf=ln 2, tfidf rounds to 0.5199; dog is ubiquitous.
	cat := result.Terms[0]
	if cat.Term != "cat" {
		t.Fatalf("first term = %q, want cat", cat.Term)
	}
	if cat.TF != 0.75 {
		t.Errorf("cat TF = %v, want 0.75", cat.TF)
	}
	if cat.IDF != 0.6931 {
		t.Errorf("cat IDF = %v, want 0.6931", cat.IDF)
	}
	if cat.TFIDF != 0.5199 {
		t.Errorf("cat TFIDF = %v, want 0.5199", cat.TFIDF)
	}

	dog := result.Terms[1]
	if dog.Term != "dog" || dog.TFIDF != 0 {
		t.Errorf("second term = %q (tfidf %v), want dog with 0", dog.Term, dog.TFIDF)
	}
}

// TestDocumentScoresNotFound maps unknown corpora and documents to sentinels.
func TestDocumentScoresNotFound(t *testing.T) {
	exec, registry := newTestExecutor(t)
	seedReference(t, registry)

	_, err := exec.DocumentScores(context.Background(), "nope", "doc-a")
	if !errors.Is(err, apperrors.ErrCorpusNotFound) {
		t.Errorf("unknown corpus error = %v, want ErrCorpusNotFound", err)
	}

	_, err = exec.DocumentScores(context.Background(), "reviews", "doc-z")
	if !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("unknown document error = %v, want ErrDocumentNotFound", err)
	}
}

// TestTopTerms verifies corpus-wide ranking: the two discriminating terms
// outrank the ubiquitous one.
func TestTopTerms(t *testing.T) {
	exec, registry := newTestExecutor(t)
	seedReference(t, registry)

	result, err := exec.TopTerms(context.Background(), "reviews", 2)
	if err != nil {
		t.Fatalf("TopTerms: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(result.Results))
	}
	first, second := result.Results[0], result.Results[1]
	if first.Term != "cat" || first.TFIDF != 0.5199 {
		t.Errorf("first = %s/%v, want cat/0.5199", first.Term, first.TFIDF)
	}
	if second.Term != "fox" || second.TFIDF != 0.231 {
		t.Errorf("second = %s/%v, want fox/0.231", second.Term, second.TFIDF)
	}
}

// TestTopTermsEmptyCorpus returns empty results without error for a corpus
// with no documents.
func TestTopTermsEmptyCorpus(t *testing.T) {
	exec, registry := newTestExecutor(t)
	registry.GetOrCreate("empty")

	result, err := exec.TopTerms(context.Background(), "empty", 10)
	if err != nil {
		t.Fatalf("TopTerms on empty corpus: %v", err)
	}
	if len(result.Results) != 0 {
		t.Errorf("len(Results) = %d, want 0", len(result.Results))
	}
}

// TestCorpusStats verifies the vocabulary counters.
func TestCorpusStats(t *testing.T) {
	exec, registry := newTestExecutor(t)
	seedReference(t, registry)

	result, err := exec.CorpusStats(context.Background(), "reviews")
	if err != nil {
		t.Fatalf("CorpusStats: %v", err)
	}
	if result.Documents != 2 {
		t.Errorf("Documents = %d, want 2", result.Documents)
	}
	if result.DistinctTerms != 3 {
		t.Errorf("DistinctTerms = %d, want 3", result.DistinctTerms)
	}
	if result.TotalOccurrences != 7 {
		t.Errorf("TotalOccurrences = %d, want 7", result.TotalOccurrences)
	}
}

// TestSentiment runs the lexicon join through the executor facade.
func TestSentiment(t *testing.T) {
	exec, registry := newTestExecutor(t)
	store := registry.GetOrCreate("moods")
	addDocument(t, store, "up", map[string]int{"good": 2, "tree": 1})
	addDocument(t, store, "down", map[string]int{"bad": 1, "tree": 4})

	result, err := exec.Sentiment(context.Background(), "moods")
	if err != nil {
		t.Fatalf("Sentiment: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(result.Results))
	}
	// Sorted by document ID: "down" first.
	if result.Results[0].DocumentID != "down" || result.Results[0].Score != -3 {
		t.Errorf("down = %+v, want score -3", result.Results[0])
	}
	if result.Results[1].DocumentID != "up" || result.Results[1].Score != 6 {
		t.Errorf("up = %+v, want score 6", result.Results[1])
	}
}

// TestTopics fits a small model through the executor and checks shape.
func TestTopics(t *testing.T) {
	exec, registry := newTestExecutor(t)
	store := registry.GetOrCreate("nature")
	addDocument(t, store, "sea-1", map[string]int{"wave": 3, "tide": 2, "salt": 1})
	addDocument(t, store, "sea-2", map[string]int{"wave": 2, "tide": 3, "foam": 1})
	addDocument(t, store, "land-1", map[string]int{"soil": 3, "root": 2, "leaf": 1})
	addDocument(t, store, "land-2", map[string]int{"soil": 2, "root": 3, "stem": 1})

	result, err := exec.Topics(context.Background(), "nature", 0)
	if err != nil {
		t.Fatalf("Topics: %v", err)
	}
	if result.TopicCount != 2 {
		t.Errorf("TopicCount = %d, want 2", result.TopicCount)
	}
	if len(result.Topics) != 2 {
		t.Errorf("len(Topics) = %d, want 2", len(result.Topics))
	}
	if len(result.Mixtures) != 4 {
		t.Errorf("len(Mixtures) = %d, want 4", len(result.Mixtures))
	}
}

// TestTopicsTooFewDocuments surfaces InvalidInput for a single-document corpus.
func TestTopicsTooFewDocuments(t *testing.T) {
	exec, registry := newTestExecutor(t)
	store := registry.GetOrCreate("tiny")
	addDocument(t, store, "only", map[string]int{"word": 1})

	_, err := exec.Topics(context.Background(), "tiny", 2)
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

// TestCorrelations verifies the co-occurrence report through the facade.
func TestCorrelations(t *testing.T) {
	exec, registry := newTestExecutor(t)
	store := registry.GetOrCreate("pairs")
	addDocument(t, store, "d1", map[string]int{"cat": 1, "dog": 1})
	addDocument(t, store, "d2", map[string]int{"cat": 2, "dog": 3})
	addDocument(t, store, "d3", map[string]int{"fox": 1})

	result, err := exec.Correlations(context.Background(), "pairs", 5)
	if err != nil {
		t.Fatalf("Correlations: %v", err)
	}
	if len(result.Results) == 0 {
		t.Fatal("no correlation pairs returned")
	}
	top := result.Results[0]
	if top.TermA != "cat" || top.TermB != "dog" {
		t.Errorf("top pair = %s/%s, want cat/dog", top.TermA, top.TermB)
	}
	// cat and dog always co-occur and never appear apart: phi = 1.
	if top.Phi != 1 {
		t.Errorf("phi = %v, want 1", top.Phi)
	}
}
