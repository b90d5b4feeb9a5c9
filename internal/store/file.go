package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adforge/adforge/internal/pipeline"
)

// FileStore keeps one JSON document per job under a jobs directory. Writes
// go through a temp file and rename so a crash mid-save leaves the previous
// snapshot intact and loadable.
type FileStore struct {
	dir string
}

// NewFileStore creates the jobs directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: jobs directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure jobs dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

// Save overwrites the job's snapshot file.
func (s *FileStore) Save(_ context.Context, state pipeline.JobState) error {
	if state.JobID == "" {
		return fmt.Errorf("store: snapshot is missing a job id")
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", state.JobID, err)
	}
	tmp, err := os.CreateTemp(s.dir, state.JobID+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: stage snapshot for %s: %w", state.JobID, err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(append(encoded, '\n'))
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("store: write snapshot for %s: %w", state.JobID, writeErr)
		}
		return fmt.Errorf("store: write snapshot for %s: %w", state.JobID, closeErr)
	}
	if err := os.Rename(tmpName, s.path(state.JobID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: commit snapshot for %s: %w", state.JobID, err)
	}
	return nil
}

// Load reads the job's snapshot file.
func (s *FileStore) Load(_ context.Context, jobID string) (pipeline.JobState, error) {
	data, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pipeline.JobState{}, ErrNotFound
		}
		return pipeline.JobState{}, fmt.Errorf("store: read %s: %w", jobID, err)
	}
	var state pipeline.JobState
	if err := json.Unmarshal(data, &state); err != nil {
		return pipeline.JobState{}, fmt.Errorf("store: decode %s: %w", jobID, err)
	}
	return state, nil
}

// List returns snapshots ordered by file modification time, newest first.
func (s *FileStore) List(ctx context.Context, limit int) ([]pipeline.JobState, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	type candidate struct {
		jobID string
		info  fs.FileInfo
	}
	candidates := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{jobID: strings.TrimSuffix(name, ".json"), info: info})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].info.ModTime().After(candidates[j].info.ModTime())
	})
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	states := make([]pipeline.JobState, 0, len(candidates))
	for _, c := range candidates {
		state, err := s.Load(ctx, c.jobID)
		if err != nil {
			// A snapshot racing its own rename or a stray file should not
			// fail the whole listing.
			continue
		}
		states = append(states, state)
	}
	return states, nil
}
