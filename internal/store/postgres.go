package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adforge/adforge/internal/pipeline"
)

// PostgresStore persists snapshots as JSONB rows keyed by job id. Each save
// upserts the full document, so the latest row is always the last-good
// snapshot.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool using the given URL.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// InitSchema creates the jobs table. Idempotent.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS pipeline_jobs (
        job_id TEXT PRIMARY KEY,
        stage TEXT NOT NULL,
        state JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );
    CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_updated_at ON pipeline_jobs (updated_at DESC);
    `
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// Save upserts the full snapshot document.
func (s *PostgresStore) Save(ctx context.Context, state pipeline.JobState) error {
	if state.JobID == "" {
		return fmt.Errorf("store: snapshot is missing a job id")
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", state.JobID, err)
	}
	query := `
        INSERT INTO pipeline_jobs (job_id, stage, state, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (job_id) DO UPDATE
        SET stage = EXCLUDED.stage, state = EXCLUDED.state, updated_at = NOW()
    `
	if _, err := s.pool.Exec(ctx, query, state.JobID, string(state.Stage), encoded); err != nil {
		return fmt.Errorf("store: save %s: %w", state.JobID, err)
	}
	return nil
}

// Load returns the snapshot for jobID or ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context, jobID string) (pipeline.JobState, error) {
	var encoded []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM pipeline_jobs WHERE job_id = $1`, jobID).Scan(&encoded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pipeline.JobState{}, ErrNotFound
		}
		return pipeline.JobState{}, fmt.Errorf("store: load %s: %w", jobID, err)
	}
	var state pipeline.JobState
	if err := json.Unmarshal(encoded, &state); err != nil {
		return pipeline.JobState{}, fmt.Errorf("store: decode %s: %w", jobID, err)
	}
	return state, nil
}

// List returns the most recently modified snapshots, newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]pipeline.JobState, error) {
	query := `SELECT state FROM pipeline_jobs ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	states := []pipeline.JobState{}
	for rows.Next() {
		var encoded []byte
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		var state pipeline.JobState
		if err := json.Unmarshal(encoded, &state); err != nil {
			return nil, fmt.Errorf("store: decode row: %w", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return states, nil
}
