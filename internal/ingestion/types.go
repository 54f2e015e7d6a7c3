// Package ingestion defines the request/response types, document statuses,
// and Kafka event schema used by the document ingestion pipeline.
package ingestion

import "time"

// Document lifecycle statuses, as stored in the documents.status column.
// A document is PENDING from acceptance until the analyzer has folded it
// into its corpus.
const (
	StatusPending  = "PENDING"
	StatusAnalyzed = "ANALYZED"
	StatusFailed   = "FAILED"
)

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint.
type IngestRequest struct {
	Corpus         string `json:"corpus"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotency_key"`
}

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Corpus     string `json:"corpus"`
	Status     string `json:"status"`
}

// DocumentEvent is the Kafka message payload produced after a document is
// persisted and ready for analysis.
type DocumentEvent struct {
	DocumentID string    `json:"document_id"`
	Corpus     string    `json:"corpus"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	IngestedAt time.Time `json:"ingested_at"`
}
