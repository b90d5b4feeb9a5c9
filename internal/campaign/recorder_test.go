package campaign

import (
	"testing"
	"time"

	"github.com/adforge/adforge/internal/pipeline"
)

func TestFromStateCopiesTerminalFields(t *testing.T) {
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := pipeline.JobState{
		JobID:       "job-1",
		CampaignRef: "crm-77",
		Config:      pipeline.Config{Platform: "meta", Objective: "conversions"},
		Stage:       pipeline.StageApproved,
		Variants: []pipeline.CopyVariant{
			{ID: "variant-1"}, {ID: "variant-2"},
		},
		Scores:             []pipeline.VariantScore{{VariantID: "variant-1", Score: 80}},
		ApprovedVariantIDs: []string{"variant-1"},
		CompletedAt:        &completed,
		UpdatedAt:          completed.Add(time.Second),
	}
	rec := FromState(state)
	if rec.JobID != "job-1" || rec.CampaignRef != "crm-77" {
		t.Fatalf("identity fields lost: %+v", rec)
	}
	if rec.Platform != "meta" || rec.Objective != "conversions" {
		t.Fatalf("config fields lost: %+v", rec)
	}
	if !rec.FinishedAt.Equal(completed) {
		t.Fatalf("finished at = %s, want completion time", rec.FinishedAt)
	}
	if len(rec.ApprovedVariantIDs) != 1 || rec.ApprovedVariantIDs[0] != "variant-1" {
		t.Fatalf("approved ids lost: %v", rec.ApprovedVariantIDs)
	}

	// The record must not alias the state's slices.
	rec.Variants[0].ID = "mutated"
	if state.Variants[0].ID != "variant-1" {
		t.Fatalf("record aliases state variants")
	}
}

func TestFromStateFallsBackToUpdatedAt(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := pipeline.JobState{JobID: "job-1", Stage: pipeline.StageCompleted, UpdatedAt: updated}
	rec := FromState(state)
	if !rec.FinishedAt.Equal(updated) {
		t.Fatalf("finished at = %s, want updated at", rec.FinishedAt)
	}
}
