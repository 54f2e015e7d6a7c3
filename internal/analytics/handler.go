package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const defaultSnapshotLimit = 10

// SnapshotLister reads back persisted stats snapshots. Satisfied by the
// aggregator store; declared here so the handler does not depend on the
// storage package.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error)
}

// Handler serves the aggregator's state over HTTP, mirroring the surface
// the RPC layer offers the gateway.
type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotLister
	logger     *slog.Logger
}

// NewHandler builds the analytics HTTP handler. snapshots may be nil when
// PostgreSQL is unavailable; Snapshots then answers 503 while Stats keeps
// serving from memory.
func NewHandler(agg *Aggregator, snapshots SnapshotLister) *Handler {
	return &Handler{
		aggregator: agg,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats returns the current in-memory aggregates.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

// Snapshots returns recent persisted aggregates, newest first. The limit
// query parameter caps the number returned.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot persistence is disabled"})
		return
	}

	limit := defaultSnapshotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	snaps, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list snapshots", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing snapshots failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
