// Package rpc exposes the analytics aggregator over the platform's internal
// JSON-over-TCP RPC layer so the gateway can serve analytics without a
// second HTTP hop.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/corpuslab/corpus-analytics-platform/internal/analytics"
	aggstore "github.com/corpuslab/corpus-analytics-platform/internal/analytics/aggregator"
	"github.com/corpuslab/corpus-analytics-platform/pkg/grpc"
	"github.com/corpuslab/corpus-analytics-platform/pkg/proto"
)

const defaultSnapshotLimit = 10

// Register wires the AnalyticsService methods onto the RPC server. store
// may be nil when PostgreSQL is unavailable; Snapshots then returns an
// error while Stats keeps serving from memory.
func Register(s *grpc.Server, agg *analytics.Aggregator, store *aggstore.Store) {
	s.Register("AnalyticsService.Stats", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return statsResponse(agg.Stats()), nil
	})

	s.Register("AnalyticsService.Snapshots", func(ctx context.Context, params json.RawMessage) (any, error) {
		if store == nil {
			return nil, errors.New("snapshot store not configured")
		}
		var req proto.SnapshotsRequest
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decoding snapshots request: %w", err)
			}
		}
		limit := int(req.Limit)
		if limit <= 0 {
			limit = defaultSnapshotLimit
		}
		snaps, err := store.ListSnapshots(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", err)
		}
		resp := proto.SnapshotsResponse{
			Snapshots: make([]proto.StatsResponse, 0, len(snaps)),
			Count:     int32(len(snaps)),
		}
		for _, snap := range snaps {
			resp.Snapshots = append(resp.Snapshots, statsResponse(snap))
		}
		return resp, nil
	})

	s.Register("AnalyticsService.Health", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return proto.HealthCheckResponse{Status: "SERVING"}, nil
	})
}

func statsResponse(stats analytics.AggregatedStats) proto.StatsResponse {
	resp := proto.StatsResponse{
		TotalScoreRequests: stats.TotalScoreRequests,
		TotalDocsAnalyzed:  stats.TotalDocsAnalyzed,
		CacheHits:          stats.CacheHits,
		CacheMisses:        stats.CacheMisses,
		EmptyCorpusCount:   stats.EmptyCorpusCount,
		AvgLatencyMs:       stats.AvgLatencyMs,
		P50LatencyMs:       stats.P50LatencyMs,
		P95LatencyMs:       stats.P95LatencyMs,
		P99LatencyMs:       stats.P99LatencyMs,
		RequestsByKind:     stats.RequestsByKind,
		RequestsPerMinute:  stats.RequestsPerMinute,
	}
	resp.TopCorpora = corpusActivity(stats.TopCorpora)
	resp.EmptyCorpora = corpusActivity(stats.EmptyCorpora)
	return resp
}

func corpusActivity(counts []analytics.CorpusCount) []proto.CorpusActivity {
	out := make([]proto.CorpusActivity, 0, len(counts))
	for _, c := range counts {
		out = append(out, proto.CorpusActivity{Corpus: c.Corpus, Count: c.Count})
	}
	return out
}
