// Package aggregator persists aggregated analytics state to PostgreSQL so
// lifetime totals survive service restarts.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/internal/analytics"
	"github.com/corpuslab/corpus-analytics-platform/pkg/postgres"
	"github.com/corpuslab/corpus-analytics-platform/pkg/resilience"
)

// finalSnapshotTimeout bounds the last write during shutdown, after the
// service context is already cancelled.
const finalSnapshotTimeout = 5 * time.Second

// Store writes and reads snapshot rows in the analytics_snapshots table
// (created by migrations/001_init.sql). Snapshots are stored as JSONB blobs
// rather than columns: the stats shape changes more often than the schema
// should.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// SaveSnapshot inserts one snapshot row, retrying transient write failures
// with backoff. Losing a single snapshot is tolerable; the next tick
// captures a superset of the same counters.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	blob, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	insert := func() error {
		_, err := s.db.DB.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
			blob, time.Now().UTC(),
		)
		return err
	}
	if err := resilience.Retry(ctx, "analytics_snapshot_insert", resilience.RetryConfig{}, insert); err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_score_requests", stats.TotalScoreRequests,
		"total_docs_analyzed", stats.TotalDocsAnalyzed,
	)
	return nil
}

// LatestSnapshot returns the newest snapshot, or nil with no error when the
// table is empty. Callers use it to reseed the aggregator after a restart,
// and an empty table just means a fresh start.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	)

	var blob []byte
	switch err := row.Scan(&blob); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	stats, err := decodeSnapshot(blob)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that fail
// to decode are skipped with a warning instead of failing the whole listing;
// one corrupt blob should not hide the readable history around it.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []analytics.AggregatedStats
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		stats, err := decodeSnapshot(blob)
		if err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

func decodeSnapshot(blob []byte) (analytics.AggregatedStats, error) {
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(blob, &stats); err != nil {
		return analytics.AggregatedStats{}, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return stats, nil
}

// StartPeriodicSave snapshots the aggregator every interval until ctx is
// cancelled, then writes one final snapshot so the shutdown state is the one
// a restart restores.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go s.run(ctx, agg, interval)
	s.logger.Info("periodic snapshot started", "interval", interval)
}

func (s *Store) run(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			s.saveFinal(agg)
			return
		}
	}
}

// saveFinal runs after the service context is cancelled, so the write gets
// its own short deadline.
func (s *Store) saveFinal(agg *analytics.Aggregator) {
	ctx, cancel := context.WithTimeout(context.Background(), finalSnapshotTimeout)
	defer cancel()
	if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
		s.logger.Error("final snapshot failed", "error", err)
	}
}
