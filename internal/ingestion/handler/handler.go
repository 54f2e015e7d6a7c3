package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corpuslab/corpus-analytics-platform/internal/ingestion"
	"github.com/corpuslab/corpus-analytics-platform/internal/ingestion/publisher"
	"github.com/corpuslab/corpus-analytics-platform/internal/ingestion/validator"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
	"github.com/corpuslab/corpus-analytics-platform/pkg/logger"
)

// maxRequestBytes bounds the ingestion request body. The validator caps
// document bodies at 1 MiB after decoding; this stops oversized payloads
// before the decoder buffers them.
const maxRequestBytes = 2 << 20

// Handler serves the ingestion HTTP API.
type Handler struct {
	publisher *publisher.Publisher
	logger    *slog.Logger
}

// New creates a Handler backed by the given publisher.
func New(pub *publisher.Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest accepts a document, validates it, persists it, and answers 202
// with the PENDING document; analysis happens asynchronously.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	if err := validator.ValidateIngestRequest(&req); err != nil {
		var vErr *validator.ValidationError
		if errors.As(err, &vErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": vErr.Fields,
			})
		} else {
			h.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	resp, err := h.publisher.Ingest(ctx, &req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "error", err, "status_code", status)
		h.writeError(w, status, "could not ingest document")
		return
	}

	log.Info("document ingested", "doc_id", resp.DocumentID, "corpus", resp.Corpus)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("response write failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
