// Package proto defines the shared message types used for internal RPC
// communication between services in the Corpus Analytics Platform.
//
// The types carry JSON struct tags for serialization over the platform's
// lightweight JSON-over-TCP RPC layer (see pkg/grpc). Field tags match the
// HTTP API payloads of the owning services, so a gateway can forward RPC
// results to clients without re-mapping.
package proto

// ---------- Common ----------

// Document represents a document's metadata across all services.
type Document struct {
	ID          string `json:"id"`
	Corpus      string `json:"corpus"`
	Title       string `json:"title"`
	ContentHash string `json:"content_hash"`
	ContentSize int32  `json:"content_size"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"created_at"`
	AnalyzedAt  int64  `json:"analyzed_at,omitempty"`
}

// Pagination controls limit/offset for list endpoints.
type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// ---------- Analytics ----------

// StatsRequest is the input to the AnalyticsService.Stats RPC. It carries
// no fields today; the struct exists so the method signature can grow
// without a wire break.
type StatsRequest struct{}

// CorpusActivity is one corpus with its request count.
type CorpusActivity struct {
	Corpus string `json:"corpus"`
	Count  int64  `json:"count"`
}

// StatsResponse is the output of the AnalyticsService.Stats RPC. Its JSON
// shape mirrors the aggregator's live stats payload.
type StatsResponse struct {
	TotalScoreRequests int64            `json:"total_score_requests"`
	TotalDocsAnalyzed  int64            `json:"total_docs_analyzed"`
	CacheHits          int64            `json:"cache_hits"`
	CacheMisses        int64            `json:"cache_misses"`
	EmptyCorpusCount   int64            `json:"empty_corpus_count"`
	AvgLatencyMs       float64          `json:"avg_latency_ms"`
	P50LatencyMs       int64            `json:"p50_latency_ms"`
	P95LatencyMs       int64            `json:"p95_latency_ms"`
	P99LatencyMs       int64            `json:"p99_latency_ms"`
	TopCorpora         []CorpusActivity `json:"top_corpora"`
	EmptyCorpora       []CorpusActivity `json:"empty_corpora"`
	RequestsByKind     map[string]int64 `json:"requests_by_kind"`
	RequestsPerMinute  float64          `json:"requests_per_minute"`
}

// SnapshotsRequest is the input to the AnalyticsService.Snapshots RPC.
type SnapshotsRequest struct {
	Limit int32 `json:"limit"`
}

// SnapshotsResponse returns persisted analytics snapshots, newest first.
type SnapshotsResponse struct {
	Snapshots []StatsResponse `json:"snapshots"`
	Count     int32           `json:"count"`
}
