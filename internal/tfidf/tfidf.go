// Package tfidf computes term frequency, inverse document frequency, and
// their product over counted (document, term) records.
//
// Scores follow the classic definitions: tf is a term's share of its
// document's total count, idf = ln(D/d_t) where D is the number of
// distinct documents and d_t the number of documents containing the term,
// and tfidf = tf * idf. A term appearing in every document has idf 0 and
// scores 0 everywhere; that is expected, not an error.
package tfidf

import (
	"fmt"
	"math"

	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
)

// TermCount is one (document, term, count) input record. Count must be
// positive, and each (DocumentID, Term) pair may appear at most once in
// a Score call. Callers aggregating raw token streams pre-sum their
// counts instead of emitting repeated pairs.
type TermCount struct {
	DocumentID string `json:"document_id"`
	Term       string `json:"term"`
	Count      int    `json:"count"`
}

// ScoredTerm is a TermCount plus its computed scores.
type ScoredTerm struct {
	DocumentID string  `json:"document_id"`
	Term       string  `json:"term"`
	Count      int     `json:"count"`
	TF         float64 `json:"tf"`
	IDF        float64 `json:"idf"`
	TFIDF      float64 `json:"tf_idf"`
}

type termKey struct {
	doc  string
	term string
}

// Score computes tf, idf, and tfidf for every input record and returns
// one ScoredTerm per TermCount, in input order, with all input fields
// carried through unchanged.
//
// The input is validated before any aggregation happens: a record with a
// non-positive count or a repeated (DocumentID, Term) pair fails the
// whole call with an error wrapping errors.ErrInvalidInput, and no
// partial results are returned. An empty input yields an empty result
// and a nil error.
func Score(records []TermCount) ([]ScoredTerm, error) {
	if err := validate(records); err != nil {
		return nil, err
	}

	totals := DocumentTotals(records)
	docFreq := DocumentFrequencies(records)
	numDocs := float64(len(totals))

	scored := make([]ScoredTerm, 0, len(records))
	for _, rec := range records {
		tf := float64(rec.Count) / float64(totals[rec.DocumentID])
		idf := math.Log(numDocs / float64(docFreq[rec.Term]))
		scored = append(scored, ScoredTerm{
			DocumentID: rec.DocumentID,
			Term:       rec.Term,
			Count:      rec.Count,
			TF:         tf,
			IDF:        idf,
			TFIDF:      tf * idf,
		})
	}
	return scored, nil
}

// DocumentTotals sums counts per document. Every document present in the
// input has a positive total once validation has passed.
func DocumentTotals(records []TermCount) map[string]int {
	totals := make(map[string]int)
	for _, rec := range records {
		totals[rec.DocumentID] += rec.Count
	}
	return totals
}

// DocumentFrequencies counts, per term, how many distinct documents
// contain it.
func DocumentFrequencies(records []TermCount) map[string]int {
	seen := make(map[termKey]struct{}, len(records))
	freq := make(map[string]int)
	for _, rec := range records {
		key := termKey{doc: rec.DocumentID, term: rec.Term}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		freq[rec.Term]++
	}
	return freq
}

func validate(records []TermCount) error {
	seen := make(map[termKey]struct{}, len(records))
	for _, rec := range records {
		if rec.Count <= 0 {
			return fmt.Errorf("document %q term %q: non-positive count %d: %w",
				rec.DocumentID, rec.Term, rec.Count, apperrors.ErrInvalidInput)
		}
		key := termKey{doc: rec.DocumentID, term: rec.Term}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("document %q term %q: duplicate entry: %w",
				rec.DocumentID, rec.Term, apperrors.ErrInvalidInput)
		}
		seen[key] = struct{}{}
	}
	return nil
}
