// Package publisher persists accepted documents to PostgreSQL and publishes
// document events to Kafka for the analyzer. Writes are idempotent when the
// caller supplies an idempotency key.
//
// The documents table is defined in migrations/001_init.sql.
package publisher

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/internal/ingestion"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
	"github.com/corpuslab/corpus-analytics-platform/pkg/postgres"
)

// Publisher coordinates document persistence and Kafka event production.
type Publisher struct {
	db       *postgres.Client
	producer *kafka.Producer
	logger   *slog.Logger
}

// New creates a Publisher with the given database and Kafka producer.
func New(db *postgres.Client, producer *kafka.Producer) *Publisher {
	return &Publisher{
		db:       db,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest persists the document and publishes a DocumentEvent keyed by
// corpus. A replayed idempotency key returns the original document instead
// of inserting a second row.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := p.findByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("idempotency key replayed, returning original document",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.DocumentID,
			)
			return existing, nil
		}
	}

	docID, err := p.insertDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}
	p.publishEvent(ctx, docID, req)

	return &ingestion.IngestResponse{
		DocumentID: docID,
		Corpus:     req.Corpus,
		Status:     ingestion.StatusPending,
	}, nil
}

// insertDocument writes the document row and returns its generated ID. An
// idempotency-key collision against a concurrent insert surfaces as an
// IdempotencyConflict: ON CONFLICT DO NOTHING makes the RETURNING clause
// come back empty.
func (p *Publisher) insertDocument(ctx context.Context, req *ingestion.IngestRequest) (string, error) {
	contentHash := fmt.Sprintf("%x", sha256.Sum256([]byte(req.Body)))
	idemKey := sql.NullString{String: req.IdempotencyKey, Valid: req.IdempotencyKey != ""}

	var docID string
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO documents (corpus, title, content_hash, content_size, idempotency_key, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING id`,
			req.Corpus, req.Title, contentHash, len(req.Body),
			idemKey, ingestion.StatusPending,
		).Scan(&docID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.New(apperrors.ErrIdempotencyConflict, http.StatusConflict, "idempotency key already in use")
		}
		return err
	})
	return docID, err
}

// publishEvent announces the accepted document to the analyzer. The publish
// sits outside the insert transaction, and failure is logged rather than
// returned: a broker outage must not roll back an accepted document, it
// just leaves the row PENDING until the event is re-sent.
func (p *Publisher) publishEvent(ctx context.Context, docID string, req *ingestion.IngestRequest) {
	err := p.producer.Publish(ctx, kafka.Event{
		Key: req.Corpus,
		Value: ingestion.DocumentEvent{
			DocumentID: docID,
			Corpus:     req.Corpus,
			Title:      req.Title,
			Body:       req.Body,
			IngestedAt: time.Now().UTC(),
		},
	})
	if err != nil {
		p.logger.Error("failed to publish to kafka, document stuck in PENDING",
			"doc_id", docID,
			"corpus", req.Corpus,
			"error", err,
		)
	}
}

// findByIdempotencyKey returns the previously accepted document for key,
// or nil when the key is unused.
func (p *Publisher) findByIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error) {
	row := p.db.DB.QueryRowContext(ctx,
		`SELECT id, corpus, status FROM documents WHERE idempotency_key = $1`, key)

	var resp ingestion.IngestResponse
	switch err := row.Scan(&resp.DocumentID, &resp.Corpus, &resp.Status); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	return &resp, nil
}
