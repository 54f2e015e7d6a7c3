package topk

import (
	"container/heap"

	"github.com/corpuslab/corpus-analytics-platform/internal/tfidf"
)

// Select returns the limit highest-weighted entries from scored, ordered by
// TFIDF descending with ties broken by document then term ascending. It keeps
// a bounded min-heap so memory stays O(limit) regardless of corpus size.
func Select(scored []tfidf.ScoredTerm, limit int) []tfidf.ScoredTerm {
	if limit <= 0 {
		limit = 10
	}
	h := &scoredTermHeap{}
	heap.Init(h)
	for _, st := range scored {
		heap.Push(h, st)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]tfidf.ScoredTerm, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(tfidf.ScoredTerm)
	}
	return result
}

type scoredTermHeap []tfidf.ScoredTerm

func (h scoredTermHeap) Len() int { return len(h) }

func (h scoredTermHeap) Less(i, j int) bool {
	if h[i].TFIDF != h[j].TFIDF {
		return h[i].TFIDF < h[j].TFIDF
	}
	if h[i].DocumentID != h[j].DocumentID {
		return h[i].DocumentID > h[j].DocumentID
	}
	return h[i].Term > h[j].Term
}

func (h scoredTermHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredTermHeap) Push(x interface{}) {
	*h = append(*h, x.(tfidf.ScoredTerm))
}

func (h *scoredTermHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
