package audit

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/adforge/adforge/internal/pipeline"
)

func snap(jobID string, stage pipeline.Stage, message string) pipeline.ProgressSnapshot {
	return pipeline.ProgressSnapshot{
		JobID:   jobID,
		Stage:   stage,
		Percent: stage.Percent(),
		Message: message,
	}
}

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	trail, err := New(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("new trail: %v", err)
	}
	stages := []pipeline.Stage{
		pipeline.StagePending,
		pipeline.StageExtracting,
		pipeline.StageGenerating,
		pipeline.StageMatching,
		pipeline.StageComposing,
	}
	for _, stage := range stages {
		trail.Record(snap("job-1", stage, "entry "+string(stage)))
	}
	lines, total := trail.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []pipeline.Stage{pipeline.StageGenerating, pipeline.StageMatching, pipeline.StageComposing} {
		if !strings.Contains(lines[idx], string(want)) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestTailJobFiltersByJobID(t *testing.T) {
	trail, err := New(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("new trail: %v", err)
	}
	trail.Record(snap("job-1", pipeline.StageExtracting, ""))
	trail.Record(snap("job-2", pipeline.StageExtracting, ""))
	trail.Record(snap("job-1", pipeline.StageGenerating, ""))

	lines, total := trail.TailJob("job-1", 10)
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	for _, line := range lines {
		if !strings.Contains(line, "job-1") {
			t.Fatalf("foreign line in filtered tail: %q", line)
		}
	}
}

func TestRecordPrefersErrorOverMessage(t *testing.T) {
	trail, err := New(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("new trail: %v", err)
	}
	failed := pipeline.ProgressSnapshot{
		JobID:   "job-1",
		Stage:   pipeline.StageFailed,
		Percent: 100,
		Message: "generating copy",
		Error:   "provider overloaded",
	}
	trail.Record(failed)
	lines, _ := trail.Tail(1)
	if len(lines) != 1 || !strings.Contains(lines[0], "provider overloaded") {
		t.Fatalf("error detail missing from trail: %v", lines)
	}
}

func TestNilTrailIsSafe(t *testing.T) {
	var trail *Trail
	trail.Record(snap("job-1", pipeline.StagePending, ""))
	if lines, total := trail.Tail(5); lines != nil || total != 0 {
		t.Fatalf("nil trail should report nothing")
	}
}
