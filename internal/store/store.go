// Package store persists pipeline job snapshots keyed by job id. Every
// backend overwrites the full latest snapshot on save; there is no append
// log. The single-writer-per-job invariant holds by construction: only the
// engine run driving a job writes its state.
package store

import (
	"context"
	"errors"

	"github.com/adforge/adforge/internal/pipeline"
)

// ErrNotFound is returned when no snapshot exists for a job id.
var ErrNotFound = errors.New("store: job not found")

// JobStore is the durable snapshot store contract.
type JobStore interface {
	// Save overwrites the latest snapshot for state.JobID.
	Save(ctx context.Context, state pipeline.JobState) error
	// Load returns the latest snapshot or ErrNotFound.
	Load(ctx context.Context, jobID string) (pipeline.JobState, error)
	// List returns up to limit snapshots ordered by most recent
	// modification first. A non-positive limit means "all".
	List(ctx context.Context, limit int) ([]pipeline.JobState, error)
}
