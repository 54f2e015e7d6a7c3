package analyzer

import "time"

// FlushEvent is published on the corpus-flushed topic after a snapshot
// lands on disk. Scorers reload the named corpus when they see one.
type FlushEvent struct {
	Corpus       string    `json:"corpus"`
	Sequence     uint64    `json:"sequence"`
	Documents    int       `json:"documents"`
	SnapshotPath string    `json:"snapshot_path"`
	FlushedAt    time.Time `json:"flushed_at"`
}
