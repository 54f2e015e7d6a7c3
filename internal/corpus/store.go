// Package corpus holds the in-memory term-count state for named corpora.
// A Store tracks per-document term counts together with the aggregates
// scoring needs (document totals, per-term document frequency), and a
// Registry routes by corpus name.
package corpus

import (
	"fmt"
	"sort"
	"sync"

	"github.com/corpuslab/corpus-analytics-platform/internal/tfidf"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
)

// Stats summarises the size of a corpus.
type Stats struct {
	Documents        int   `json:"documents"`
	DistinctTerms    int   `json:"distinct_terms"`
	TotalOccurrences int64 `json:"total_occurrences"`
}

type Store struct {
	mu          sync.RWMutex
	name        string
	docs        map[string]map[string]int
	totals      map[string]int
	docFreq     map[string]int
	occurrences int64
}

func NewStore(name string) *Store {
	return &Store{
		name:    name,
		docs:    make(map[string]map[string]int),
		totals:  make(map[string]int),
		docFreq: make(map[string]int),
	}
}

func (s *Store) Name() string {
	return s.name
}

// AddDocument stores the counted terms of one document, replacing any
// previous version of the same document and adjusting the corpus
// aggregates. Records must carry the given docID, positive counts, and
// no repeated term.
func (s *Store) AddDocument(docID string, records []tfidf.TermCount) error {
	if docID == "" {
		return fmt.Errorf("empty document id: %w", apperrors.ErrInvalidInput)
	}
	counts := make(map[string]int, len(records))
	for _, rec := range records {
		if rec.DocumentID != docID {
			return fmt.Errorf("record document %q does not match %q: %w",
				rec.DocumentID, docID, apperrors.ErrInvalidInput)
		}
		if rec.Count <= 0 {
			return fmt.Errorf("term %q: non-positive count %d: %w",
				rec.Term, rec.Count, apperrors.ErrInvalidInput)
		}
		if _, dup := counts[rec.Term]; dup {
			return fmt.Errorf("term %q: duplicate entry: %w", rec.Term, apperrors.ErrInvalidInput)
		}
		counts[rec.Term] = rec.Count
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(docID)
	s.addLocked(docID, counts)
	return nil
}

// RemoveDocument deletes a document and its contribution to the corpus
// aggregates. It reports whether the document existed.
func (s *Store) RemoveDocument(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.docs[docID]
	s.removeLocked(docID)
	return exists
}

func (s *Store) addLocked(docID string, counts map[string]int) {
	if len(counts) == 0 {
		// A document may legitimately tokenize to nothing (all stop-words);
		// it still exists but contributes no terms.
		s.docs[docID] = map[string]int{}
		return
	}
	doc := make(map[string]int, len(counts))
	total := 0
	for term, count := range counts {
		doc[term] = count
		total += count
		s.docFreq[term]++
		s.occurrences += int64(count)
	}
	s.docs[docID] = doc
	s.totals[docID] = total
}

func (s *Store) removeLocked(docID string) {
	doc, exists := s.docs[docID]
	if !exists {
		return
	}
	for term, count := range doc {
		s.docFreq[term]--
		if s.docFreq[term] <= 0 {
			delete(s.docFreq, term)
		}
		s.occurrences -= int64(count)
	}
	delete(s.docs, docID)
	delete(s.totals, docID)
}

// TermCounts returns every (document, term, count) record of the corpus,
// sorted by document then term, ready for scoring.
func (s *Store) TermCounts() []tfidf.TermCount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]tfidf.TermCount, 0, len(s.docs)*8)
	for docID, doc := range s.docs {
		for term, count := range doc {
			records = append(records, tfidf.TermCount{
				DocumentID: docID,
				Term:       term,
				Count:      count,
			})
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].DocumentID != records[j].DocumentID {
			return records[i].DocumentID < records[j].DocumentID
		}
		return records[i].Term < records[j].Term
	})
	return records
}

// DocumentTerms returns one document's records sorted by term, and whether
// the document exists.
func (s *Store) DocumentTerms(docID string) ([]tfidf.TermCount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.docs[docID]
	if !exists {
		return nil, false
	}
	records := make([]tfidf.TermCount, 0, len(doc))
	for term, count := range doc {
		records = append(records, tfidf.TermCount{
			DocumentID: docID,
			Term:       term,
			Count:      count,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Term < records[j].Term
	})
	return records, true
}

// Documents returns all document IDs in sorted order.
func (s *Store) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for docID := range s.docs {
		ids = append(ids, docID)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Documents:        len(s.docs),
		DistinctTerms:    len(s.docFreq),
		TotalOccurrences: s.occurrences,
	}
}

// Export deep-copies the full document/term/count state for snapshotting.
func (s *Store) Export() map[string]map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]int, len(s.docs))
	for docID, doc := range s.docs {
		copied := make(map[string]int, len(doc))
		for term, count := range doc {
			copied[term] = count
		}
		out[docID] = copied
	}
	return out
}

// Import replaces the whole corpus state with previously exported data,
// rebuilding every aggregate.
func (s *Store) Import(docs map[string]map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = make(map[string]map[string]int, len(docs))
	s.totals = make(map[string]int, len(docs))
	s.docFreq = make(map[string]int)
	s.occurrences = 0
	for docID, doc := range docs {
		counts := make(map[string]int, len(doc))
		for term, count := range doc {
			counts[term] = count
		}
		s.addLocked(docID, counts)
	}
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]map[string]int)
	s.totals = make(map[string]int)
	s.docFreq = make(map[string]int)
	s.occurrences = 0
}
