package corpus

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/corpuslab/corpus-analytics-platform/internal/tfidf"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
)

func counts(docID string, pairs map[string]int) []tfidf.TermCount {
	records := make([]tfidf.TermCount, 0, len(pairs))
	for term, count := range pairs {
		records = append(records, tfidf.TermCount{DocumentID: docID, Term: term, Count: count})
	}
	return records
}

// TestStoreAddAndStats verifies aggregate bookkeeping across multiple
// documents.
func TestStoreAddAndStats(t *testing.T) {
	s := NewStore("tweets")

	if err := s.AddDocument("A", counts("A", map[string]int{"cat": 3, "dog": 1})); err != nil {
		t.Fatalf("AddDocument(A): %v", err)
	}
	if err := s.AddDocument("B", counts("B", map[string]int{"dog": 2, "fox": 1})); err != nil {
		t.Fatalf("AddDocument(B): %v", err)
	}

	stats := s.Stats()
	if stats.Documents != 2 {
		t.Errorf("Documents = %d, want 2", stats.Documents)
	}
	if stats.DistinctTerms != 3 {
		t.Errorf("DistinctTerms = %d, want 3", stats.DistinctTerms)
	}
	if stats.TotalOccurrences != 7 {
		t.Errorf("TotalOccurrences = %d, want 7", stats.TotalOccurrences)
	}

	records := s.TermCounts()
	if len(records) != 4 {
		t.Fatalf("TermCounts returned %d records, want 4", len(records))
	}
	// Sorted by document then term.
	wantOrder := []string{"A/cat", "A/dog", "B/dog", "B/fox"}
	for i, rec := range records {
		got := rec.DocumentID + "/" + rec.Term
		if got != wantOrder[i] {
			t.Errorf("record %d = %s, want %s", i, got, wantOrder[i])
		}
	}
}

// TestStoreScoring runs the scorer over store-produced records and checks
// the reference corpus values survive the round trip.
func TestStoreScoring(t *testing.T) {
	s := NewStore("reference")
	s.AddDocument("A", counts("A", map[string]int{"cat": 3, "dog": 1}))
	s.AddDocument("B", counts("B", map[string]int{"dog": 2, "fox": 1}))

	scored, err := tfidf.Score(s.TermCounts())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	byKey := make(map[string]tfidf.ScoredTerm, len(scored))
	for _, st := range scored {
		byKey[st.DocumentID+"/"+st.Term] = st
	}
	ln2 := math.Log(2)
	if got := byKey["A/cat"].TFIDF; math.Abs(got-0.75*ln2) > 1e-12 {
		t.Errorf("tfidf(A, cat) = %v, want %v", got, 0.75*ln2)
	}
	if got := byKey["A/dog"].TFIDF; got != 0 {
		t.Errorf("tfidf(A, dog) = %v, want 0", got)
	}
	if got := byKey["B/fox"].TFIDF; math.Abs(got-ln2/3) > 1e-12 {
		t.Errorf("tfidf(B, fox) = %v, want %v", got, ln2/3)
	}
}

// TestStoreReplaceDocument verifies replacing a document adjusts document
// frequency and occurrence aggregates.
func TestStoreReplaceDocument(t *testing.T) {
	s := NewStore("c")
	s.AddDocument("A", counts("A", map[string]int{"cat": 2, "dog": 1}))
	s.AddDocument("B", counts("B", map[string]int{"cat": 1}))

	// Replace A without "cat": its doc freq must drop to 1 (only B).
	if err := s.AddDocument("A", counts("A", map[string]int{"dog": 4})); err != nil {
		t.Fatalf("replace: %v", err)
	}

	stats := s.Stats()
	if stats.Documents != 2 {
		t.Errorf("Documents = %d, want 2", stats.Documents)
	}
	if stats.TotalOccurrences != 5 {
		t.Errorf("TotalOccurrences = %d, want 5", stats.TotalOccurrences)
	}

	freq := tfidf.DocumentFrequencies(s.TermCounts())
	if freq["cat"] != 1 {
		t.Errorf("d_t(cat) = %d, want 1", freq["cat"])
	}
	if freq["dog"] != 1 {
		t.Errorf("d_t(dog) = %d, want 1", freq["dog"])
	}
}

// TestStoreRemoveDocument verifies removal restores a clean slate.
func TestStoreRemoveDocument(t *testing.T) {
	s := NewStore("c")
	s.AddDocument("A", counts("A", map[string]int{"cat": 2}))

	if !s.RemoveDocument("A") {
		t.Error("RemoveDocument(A) = false, want true")
	}
	if s.RemoveDocument("A") {
		t.Error("second RemoveDocument(A) = true, want false")
	}

	stats := s.Stats()
	if stats.Documents != 0 || stats.DistinctTerms != 0 || stats.TotalOccurrences != 0 {
		t.Errorf("stats after removal = %+v, want zeros", stats)
	}
	if records := s.TermCounts(); len(records) != 0 {
		t.Errorf("TermCounts after removal = %v, want empty", records)
	}
}

// TestStoreAddDocumentValidation covers the rejected input shapes.
func TestStoreAddDocumentValidation(t *testing.T) {
	s := NewStore("c")

	tests := []struct {
		name    string
		docID   string
		records []tfidf.TermCount
	}{
		{
			name:    "empty document id",
			docID:   "",
			records: nil,
		},
		{
			name:  "mismatched document id",
			docID: "A",
			records: []tfidf.TermCount{
				{DocumentID: "B", Term: "cat", Count: 1},
			},
		},
		{
			name:  "non-positive count",
			docID: "A",
			records: []tfidf.TermCount{
				{DocumentID: "A", Term: "cat", Count: 0},
			},
		},
		{
			name:  "duplicate term",
			docID: "A",
			records: []tfidf.TermCount{
				{DocumentID: "A", Term: "cat", Count: 1},
				{DocumentID: "A", Term: "cat", Count: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AddDocument(tt.docID, tt.records)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Errorf("error %v does not wrap ErrInvalidInput", err)
			}
		})
	}

	if s.DocumentCount() != 0 {
		t.Errorf("store contains %d documents after failed adds, want 0", s.DocumentCount())
	}
}

// TestStoreEmptyDocument verifies a document whose text tokenized to
// nothing still counts as a document but yields no records.
func TestStoreEmptyDocument(t *testing.T) {
	s := NewStore("c")
	if err := s.AddDocument("empty", nil); err != nil {
		t.Fatalf("AddDocument(empty): %v", err)
	}
	if s.DocumentCount() != 1 {
		t.Errorf("DocumentCount = %d, want 1", s.DocumentCount())
	}
	if records := s.TermCounts(); len(records) != 0 {
		t.Errorf("TermCounts = %v, want empty", records)
	}
	records, ok := s.DocumentTerms("empty")
	if !ok {
		t.Error("DocumentTerms(empty) reports missing document")
	}
	if len(records) != 0 {
		t.Errorf("DocumentTerms(empty) = %v, want no records", records)
	}
}

// TestStoreExportImport verifies a snapshot round trip through Export and
// Import rebuilds identical aggregates.
func TestStoreExportImport(t *testing.T) {
	src := NewStore("src")
	src.AddDocument("A", counts("A", map[string]int{"cat": 3, "dog": 1}))
	src.AddDocument("B", counts("B", map[string]int{"dog": 2, "fox": 1}))

	dst := NewStore("dst")
	dst.AddDocument("old", counts("old", map[string]int{"stale": 9}))
	dst.Import(src.Export())

	if got, want := dst.Stats(), src.Stats(); got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
	srcRecords := src.TermCounts()
	dstRecords := dst.TermCounts()
	if len(srcRecords) != len(dstRecords) {
		t.Fatalf("record count = %d, want %d", len(dstRecords), len(srcRecords))
	}
	for i := range srcRecords {
		if srcRecords[i] != dstRecords[i] {
			t.Errorf("record %d = %+v, want %+v", i, dstRecords[i], srcRecords[i])
		}
	}
}

// TestStoreConcurrentAccess exercises parallel writers and readers under
// the race detector.
func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore("c")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				docID := fmt.Sprintf("doc-%d-%d", n, j)
				s.AddDocument(docID, counts(docID, map[string]int{"shared": 1, fmt.Sprintf("t%d", n): 2}))
				s.TermCounts()
				s.Stats()
			}
		}(i)
	}
	wg.Wait()

	if got := s.DocumentCount(); got != 400 {
		t.Errorf("DocumentCount = %d, want 400", got)
	}
}

// TestRegistry verifies lazy creation and stable instances.
func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) reported existing corpus")
	}

	a := r.GetOrCreate("tweets")
	b := r.GetOrCreate("tweets")
	if a != b {
		t.Error("GetOrCreate returned different instances for the same name")
	}
	r.GetOrCreate("books")

	names := r.Names()
	if len(names) != 2 || names[0] != "books" || names[1] != "tweets" {
		t.Errorf("Names = %v, want [books tweets]", names)
	}
	stores := r.All()
	if len(stores) != 2 || stores[0].Name() != "books" || stores[1].Name() != "tweets" {
		t.Errorf("All returned wrong stores: %v", stores)
	}
}
