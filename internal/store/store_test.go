package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/adforge/adforge/internal/pipeline"
)

func writeFile(dir, name, contents string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644)
}

// The file and memory backends must behave identically at the contract
// level, so the shared suite runs against both.

func backends(t *testing.T) map[string]JobStore {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	return map[string]JobStore{
		"file":   fileStore,
		"memory": NewMemoryStore(),
	}
}

func sampleState(jobID string, stage pipeline.Stage) pipeline.JobState {
	return pipeline.JobState{
		JobID:     jobID,
		Config:    pipeline.Config{URL: "https://example.com", VariantCount: 3},
		Stage:     stage,
		Percent:   stage.Percent(),
		Message:   "test",
		Variants:  []pipeline.CopyVariant{{ID: "variant-1", Headline: "Hello"}},
		StartedAt: time.Now().UTC().Truncate(time.Second),
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	for name, jobs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			state := sampleState("job-1", pipeline.StageGenerating)
			if err := jobs.Save(ctx, state); err != nil {
				t.Fatalf("save: %v", err)
			}
			loaded, err := jobs.Load(ctx, "job-1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.JobID != "job-1" || loaded.Stage != pipeline.StageGenerating {
				t.Fatalf("unexpected snapshot: %+v", loaded)
			}
			if len(loaded.Variants) != 1 || loaded.Variants[0].ID != "variant-1" {
				t.Fatalf("variants not preserved: %+v", loaded.Variants)
			}
		})
	}
}

func TestLoadUnknownJobReturnsNotFound(t *testing.T) {
	for name, jobs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := jobs.Load(context.Background(), "missing")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	for name, jobs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			state := sampleState("job-2", pipeline.StageScoring)
			for i := 0; i < 3; i++ {
				if err := jobs.Save(ctx, state); err != nil {
					t.Fatalf("save %d: %v", i, err)
				}
			}
			loaded, err := jobs.Load(ctx, "job-2")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			reloaded, err := jobs.Load(ctx, "job-2")
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if !reflect.DeepEqual(loaded, reloaded) {
				t.Fatalf("repeated loads differ:\n%+v\n%+v", loaded, reloaded)
			}
		})
	}
}

func TestSaveOverwritesFullSnapshot(t *testing.T) {
	for name, jobs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			state := sampleState("job-3", pipeline.StageExtracting)
			if err := jobs.Save(ctx, state); err != nil {
				t.Fatalf("save: %v", err)
			}
			state.Stage = pipeline.StageFailed
			state.Error = "extraction: no content"
			state.Variants = nil
			if err := jobs.Save(ctx, state); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			loaded, err := jobs.Load(ctx, "job-3")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.Stage != pipeline.StageFailed || loaded.Error == "" {
				t.Fatalf("overwrite not applied: %+v", loaded)
			}
			if len(loaded.Variants) != 0 {
				t.Fatalf("stale variants survived overwrite: %+v", loaded.Variants)
			}
		})
	}
}

func TestListReturnsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	jobs := NewMemoryStore()
	for i := 1; i <= 5; i++ {
		state := sampleState(fmt.Sprintf("job-%d", i), pipeline.StagePending)
		if err := jobs.Save(ctx, state); err != nil {
			t.Fatalf("save: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	listed, err := jobs.List(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(listed))
	}
	want := []string{"job-5", "job-4", "job-3"}
	for i, state := range listed {
		if state.JobID != want[i] {
			t.Fatalf("unexpected order at %d: got %s want %s", i, state.JobID, want[i])
		}
	}
}

func TestFileStoreListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	jobs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	if err := jobs.Save(ctx, sampleState("job-a", pipeline.StagePending)); err != nil {
		t.Fatalf("save: %v", err)
	}
	writeJunk(t, dir)
	listed, err := jobs.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].JobID != "job-a" {
		t.Fatalf("unexpected listing: %+v", listed)
	}
}

func writeJunk(t *testing.T, dir string) {
	t.Helper()
	for name, contents := range map[string]string{
		"notes.txt":      "not a snapshot",
		"broken.json":    "{not json",
		"job-a.1234.tmp": "half-written",
	} {
		if err := writeFile(dir, name, contents); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	first, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := first.Save(ctx, sampleState("job-b", pipeline.StageAwaitingApproval)); err != nil {
		t.Fatalf("save: %v", err)
	}
	// A new store over the same directory models a process restart.
	second, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	loaded, err := second.Load(ctx, "job-b")
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if loaded.Stage != pipeline.StageAwaitingApproval {
		t.Fatalf("unexpected stage after reopen: %s", loaded.Stage)
	}
}
