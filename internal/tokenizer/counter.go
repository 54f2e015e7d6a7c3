package tokenizer

import (
	"github.com/corpuslab/corpus-analytics-platform/internal/tfidf"
)

// Count aggregates an ordered term stream into unique (document, term,
// count) records, the pre-aggregation step that keeps downstream scoring
// free of duplicate pairs. Records appear in first-seen term order, so
// the output is deterministic for a given input.
func Count(docID string, terms []string) []tfidf.TermCount {
	counts := make(map[string]int, len(terms))
	order := make([]string, 0, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		if _, seen := counts[term]; !seen {
			order = append(order, term)
		}
		counts[term]++
	}
	records := make([]tfidf.TermCount, 0, len(order))
	for _, term := range order {
		records = append(records, tfidf.TermCount{
			DocumentID: docID,
			Term:       term,
			Count:      counts[term],
		})
	}
	return records
}
