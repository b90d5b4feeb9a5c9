package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/adforge/adforge/internal/pipeline"
)

// MemoryStore is a process-local JobStore used by tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]pipeline.JobState
	saved   map[string]time.Time
	clock   func() time.Time
	counter int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]pipeline.JobState),
		saved: make(map[string]time.Time),
		clock: time.Now,
	}
}

// Save overwrites the snapshot for state.JobID.
func (s *MemoryStore) Save(_ context.Context, state pipeline.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[state.JobID] = state.Clone()
	s.saved[state.JobID] = s.clock()
	s.counter++
	return nil
}

// Load returns the snapshot for jobID or ErrNotFound.
func (s *MemoryStore) Load(_ context.Context, jobID string) (pipeline.JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.jobs[jobID]
	if !ok {
		return pipeline.JobState{}, ErrNotFound
	}
	return state.Clone(), nil
}

// List returns snapshots ordered by most recent save first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]pipeline.JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make([]pipeline.JobState, 0, len(s.jobs))
	for id := range s.jobs {
		states = append(states, s.jobs[id].Clone())
	}
	sort.Slice(states, func(i, j int) bool {
		ti, tj := s.saved[states[i].JobID], s.saved[states[j].JobID]
		if ti.Equal(tj) {
			return states[i].JobID < states[j].JobID
		}
		return ti.After(tj)
	})
	if limit > 0 && limit < len(states) {
		states = states[:limit]
	}
	return states, nil
}

// SaveCount reports how many saves have been accepted; tests use it to
// assert persistence happens after every transition.
func (s *MemoryStore) SaveCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter
}
