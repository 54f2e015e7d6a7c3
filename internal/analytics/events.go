package analytics

import "time"

type EventType string

const (
	EventScore       EventType = "score"
	EventCacheHit    EventType = "cache_hit"
	EventCacheMiss   EventType = "cache_miss"
	EventAnalyzeDoc  EventType = "analyze_document"
	EventEmptyCorpus EventType = "empty_corpus"
)

const (
	KindDocument     = "document"
	KindTop          = "top"
	KindStats        = "stats"
	KindSentiment    = "sentiment"
	KindTopics       = "topics"
	KindCorrelations = "correlations"
)

type ScoreEvent struct {
	Type       EventType `json:"type"`
	Corpus     string    `json:"corpus"`
	DocumentID string    `json:"document_id,omitempty"`
	Kind       string    `json:"kind"`
	Records    int       `json:"records"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

type AnalyzeEvent struct {
	Type       EventType `json:"type"`
	Corpus     string    `json:"corpus"`
	DocumentID string    `json:"document_id"`
	TermCount  int       `json:"term_count"`
	TokenCount int       `json:"token_count"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
