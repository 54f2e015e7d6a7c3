package topics

import (
	"errors"
	"math"
	"testing"

	"github.com/corpuslab/corpus-analytics-platform/internal/tfidf"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
)

func fourDocCorpus() []tfidf.TermCount {
	return []tfidf.TermCount{
		{DocumentID: "sea-1", Term: "whale", Count: 4},
		{DocumentID: "sea-1", Term: "ocean", Count: 3},
		{DocumentID: "sea-2", Term: "whale", Count: 2},
		{DocumentID: "sea-2", Term: "ship", Count: 3},
		{DocumentID: "land-1", Term: "forest", Count: 4},
		{DocumentID: "land-1", Term: "deer", Count: 2},
		{DocumentID: "land-2", Term: "forest", Count: 3},
		{DocumentID: "land-2", Term: "mountain", Count: 2},
	}
}

// TestFitShape verifies topic and mixture dimensions without depending on
// the randomised topic assignments.
func TestFitShape(t *testing.T) {
	m := NewModeler(2, 50, 3)
	result, err := m.Fit(fourDocCorpus())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if result.TopicCount != 2 {
		t.Errorf("TopicCount = %d, want 2", result.TopicCount)
	}
	if len(result.Topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(result.Topics))
	}
	for _, topic := range result.Topics {
		if len(topic.Terms) == 0 || len(topic.Terms) > 3 {
			t.Errorf("topic %d has %d terms, want 1..3", topic.Index, len(topic.Terms))
		}
		for i := 1; i < len(topic.Terms); i++ {
			if topic.Terms[i].Weight > topic.Terms[i-1].Weight {
				t.Errorf("topic %d terms not sorted by weight", topic.Index)
			}
		}
		for _, term := range topic.Terms {
			if term.Weight < 0 {
				t.Errorf("topic %d term %q has negative weight %v", topic.Index, term.Term, term.Weight)
			}
		}
	}

	if len(result.Mixtures) != 4 {
		t.Fatalf("got %d mixtures, want 4", len(result.Mixtures))
	}
	wantDocs := []string{"land-1", "land-2", "sea-1", "sea-2"}
	for i, mix := range result.Mixtures {
		if mix.DocumentID != wantDocs[i] {
			t.Errorf("mixture %d document = %s, want %s", i, mix.DocumentID, wantDocs[i])
		}
		if len(mix.Weights) != 2 {
			t.Fatalf("mixture %d has %d weights, want 2", i, len(mix.Weights))
		}
		var sum float64
		for _, w := range mix.Weights {
			if w < -1e-9 {
				t.Errorf("mixture %d has negative weight %v", i, w)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 0.01 {
			t.Errorf("mixture %d weights sum to %v, want ~1", i, sum)
		}
	}
}

// TestFitValidation covers the rejected configurations.
func TestFitValidation(t *testing.T) {
	tests := []struct {
		name    string
		modeler *Modeler
		records []tfidf.TermCount
	}{
		{
			name:    "zero topics",
			modeler: NewModeler(0, 10, 5),
			records: fourDocCorpus(),
		},
		{
			name:    "empty corpus",
			modeler: NewModeler(2, 10, 5),
			records: nil,
		},
		{
			name:    "single document",
			modeler: NewModeler(2, 10, 5),
			records: []tfidf.TermCount{
				{DocumentID: "only", Term: "word", Count: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.modeler.Fit(tt.records)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Errorf("error %v does not wrap ErrInvalidInput", err)
			}
		})
	}
}

// TestBuildBags verifies bag reconstruction repeats terms by count in
// sorted document order.
func TestBuildBags(t *testing.T) {
	records := []tfidf.TermCount{
		{DocumentID: "b", Term: "tree", Count: 2},
		{DocumentID: "a", Term: "sun", Count: 1},
		{DocumentID: "b", Term: "leaf", Count: 1},
	}
	docIDs, bags := buildBags(records)
	if len(docIDs) != 2 || docIDs[0] != "a" || docIDs[1] != "b" {
		t.Fatalf("docIDs = %v, want [a b]", docIDs)
	}
	if bags[0] != "sun" {
		t.Errorf("bag(a) = %q, want \"sun\"", bags[0])
	}
	if bags[1] != "tree tree leaf" {
		t.Errorf("bag(b) = %q, want \"tree tree leaf\"", bags[1])
	}
}
