package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/internal/corpus/snapshot"
	"github.com/corpuslab/corpus-analytics-platform/pkg/config"
)

func testConfig(dir string) config.AnalyzerConfig {
	return config.AnalyzerConfig{
		DataDir:        dir,
		FlushInterval:  config.Duration{Duration: time.Minute},
		Stemming:       false,
		NGramSize:      1,
		MinTokenLength: 2,
	}
}

// TestAnalyzeDocumentCountsTerms verifies tokenization and term counting of
// a single document, including stop-word removal.
func TestAnalyzeDocumentCountsTerms(t *testing.T) {
	e, err := NewEngine(testConfig(t.TempDir()), nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	termCount, tokenCount, err := e.AnalyzeDocument("doc-1", "reviews", "Cats", "the cat cat dog")
	if err != nil {
		t.Fatalf("AnalyzeDocument: %v", err)
	}
	// "the" is a stop word; cats, cat, cat, dog remain.
	if tokenCount != 4 {
		t.Errorf("tokenCount = %d, want 4", tokenCount)
	}
	if termCount != 3 {
		t.Errorf("termCount = %d, want 3", termCount)
	}

	store, ok := e.Registry().Get("reviews")
	if !ok {
		t.Fatal("corpus reviews not registered")
	}
	terms, ok := store.DocumentTerms("doc-1")
	if !ok {
		t.Fatal("doc-1 not stored")
	}
	counts := make(map[string]int)
	for _, rec := range terms {
		counts[rec.Term] = rec.Count
	}
	if counts["cat"] != 2 || counts["dog"] != 1 || counts["cats"] != 1 {
		t.Errorf("counts = %v, want cat:2 dog:1 cats:1", counts)
	}
}

// TestAnalyzeDocumentReplaces verifies a repeated document ID replaces the
// earlier version instead of accumulating.
func TestAnalyzeDocumentReplaces(t *testing.T) {
	e, err := NewEngine(testConfig(t.TempDir()), nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if _, _, err := e.AnalyzeDocument("doc-1", "reviews", "", "cat cat cat"); err != nil {
		t.Fatalf("AnalyzeDocument: %v", err)
	}
	if _, _, err := e.AnalyzeDocument("doc-1", "reviews", "", "dog dog"); err != nil {
		t.Fatalf("AnalyzeDocument (replace): %v", err)
	}

	store, _ := e.Registry().Get("reviews")
	if got := store.DocumentCount(); got != 1 {
		t.Fatalf("DocumentCount = %d, want 1", got)
	}
	terms, _ := store.DocumentTerms("doc-1")
	counts := make(map[string]int)
	for _, rec := range terms {
		counts[rec.Term] = rec.Count
	}
	if counts["dog"] != 2 || counts["cat"] != 0 {
		t.Errorf("counts after replace = %v, want dog:2 only", counts)
	}
}

// TestFlushAndRecover verifies a flushed corpus is reloaded by a fresh
// engine pointed at the same data directory, and that snapshot sequence
// numbers continue where the previous engine stopped.
func TestFlushAndRecover(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e1, err := NewEngine(testConfig(dir), nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, _, err := e1.AnalyzeDocument("doc-a", "reviews", "", "cat cat cat dog"); err != nil {
		t.Fatalf("AnalyzeDocument doc-a: %v", err)
	}
	if _, _, err := e1.AnalyzeDocument("doc-b", "reviews", "", "dog dog fox"); err != nil {
		t.Fatalf("AnalyzeDocument doc-b: %v", err)
	}
	if err := e1.FlushCorpus(ctx, "reviews"); err != nil {
		t.Fatalf("FlushCorpus: %v", err)
	}

	e2, err := NewEngine(testConfig(dir), nil, nil)
	if err != nil {
		t.Fatalf("NewEngine (recovery): %v", err)
	}
	store, ok := e2.Registry().Get("reviews")
	if !ok {
		t.Fatal("corpus reviews not recovered")
	}
	if got := store.DocumentCount(); got != 2 {
		t.Fatalf("recovered DocumentCount = %d, want 2", got)
	}
	terms, ok := store.DocumentTerms("doc-a")
	if !ok {
		t.Fatal("doc-a not recovered")
	}
	counts := make(map[string]int)
	for _, rec := range terms {
		counts[rec.Term] = rec.Count
	}
	if counts["cat"] != 3 || counts["dog"] != 1 {
		t.Errorf("recovered doc-a counts = %v, want cat:3 dog:1", counts)
	}

	// The recovered engine must not reuse sequence 1.
	if _, _, err := e2.AnalyzeDocument("doc-c", "reviews", "", "owl owl"); err != nil {
		t.Fatalf("AnalyzeDocument doc-c: %v", err)
	}
	if err := e2.FlushCorpus(ctx, "reviews"); err != nil {
		t.Fatalf("FlushCorpus (second engine): %v", err)
	}
	if _, seq, ok := snapshot.Latest(dir, "reviews"); !ok || seq != 2 {
		t.Errorf("latest sequence = %d (ok=%v), want 2", seq, ok)
	}
}

// TestFlushSkipsEmptyCorpora verifies unknown and empty corpora flush as
// no-ops without creating snapshot files.
func TestFlushSkipsEmptyCorpora(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e, err := NewEngine(testConfig(dir), nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.FlushCorpus(ctx, "missing"); err != nil {
		t.Errorf("FlushCorpus(missing) = %v, want nil", err)
	}
	e.Registry().GetOrCreate("empty")
	if err := e.FlushCorpus(ctx, "empty"); err != nil {
		t.Errorf("FlushCorpus(empty) = %v, want nil", err)
	}
	if names := snapshot.Corpora(dir); len(names) != 0 {
		t.Errorf("Corpora = %v, want none", names)
	}
}

// TestFlushDirtyClearsDirtySet verifies FlushDirty writes one snapshot per
// modified corpus and that a second call writes nothing new.
func TestFlushDirtyClearsDirtySet(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e, err := NewEngine(testConfig(dir), nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, _, err := e.AnalyzeDocument("doc-1", "reviews", "", "cat cat"); err != nil {
		t.Fatalf("AnalyzeDocument doc-1: %v", err)
	}
	if _, _, err := e.AnalyzeDocument("doc-2", "tweets", "", "dog dog"); err != nil {
		t.Fatalf("AnalyzeDocument doc-2: %v", err)
	}

	e.FlushDirty(ctx)
	if names := snapshot.Corpora(dir); len(names) != 2 {
		t.Fatalf("Corpora after flush = %v, want 2 entries", names)
	}

	e.FlushDirty(ctx)
	if _, seq, _ := snapshot.Latest(dir, "reviews"); seq != 1 {
		t.Errorf("reviews sequence after idle flush = %d, want 1", seq)
	}
	if _, seq, _ := snapshot.Latest(dir, "tweets"); seq != 1 {
		t.Errorf("tweets sequence after idle flush = %d, want 1", seq)
	}
}
