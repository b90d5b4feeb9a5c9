package pipeline

import (
	"testing"
	"time"
)

func TestStageOrderIsFixed(t *testing.T) {
	forward := []Stage{
		StagePending, StageExtracting, StageGenerating, StageMatching,
		StageComposing, StageScoring, StageAwaitingApproval,
	}
	for i := 0; i < len(forward)-1; i++ {
		if !forward[i].CanTransition(forward[i+1]) {
			t.Fatalf("expected %s -> %s to be valid", forward[i], forward[i+1])
		}
	}
	// Skipping ahead is not allowed.
	if StageExtracting.CanTransition(StageMatching) {
		t.Fatalf("expected skip EXTRACTING -> MATCHING to be invalid")
	}
	if StageMatching.CanTransition(StageExtracting) {
		t.Fatalf("expected backwards transition to be invalid")
	}
}

func TestFailureAndCancellationReachableFromAnyNonTerminalStage(t *testing.T) {
	nonTerminal := []Stage{
		StagePending, StageExtracting, StageGenerating, StageMatching,
		StageComposing, StageScoring, StageAwaitingApproval,
	}
	for _, stage := range nonTerminal {
		if !stage.CanTransition(StageFailed) {
			t.Fatalf("expected %s -> FAILED to be valid", stage)
		}
		if !stage.CanTransition(StageCancelled) {
			t.Fatalf("expected %s -> CANCELLED to be valid", stage)
		}
	}
}

func TestTerminalStagesAcceptNothing(t *testing.T) {
	all := []Stage{
		StagePending, StageExtracting, StageGenerating, StageMatching,
		StageComposing, StageScoring, StageAwaitingApproval,
		StageApproved, StageCompleted, StageFailed, StageCancelled,
	}
	for _, terminal := range []Stage{StageApproved, StageCompleted, StageFailed, StageCancelled} {
		if !terminal.Terminal() {
			t.Fatalf("expected %s to be terminal", terminal)
		}
		for _, next := range all {
			if terminal.CanTransition(next) {
				t.Fatalf("expected terminal %s to reject transition to %s", terminal, next)
			}
		}
	}
}

func TestApprovalOnlyFromGate(t *testing.T) {
	if StageScoring.CanTransition(StageApproved) {
		t.Fatalf("APPROVED must only follow AWAITING_APPROVAL")
	}
	if !StageAwaitingApproval.CanTransition(StageApproved) {
		t.Fatalf("expected AWAITING_APPROVAL -> APPROVED")
	}
	if !StageAwaitingApproval.CanTransition(StageCompleted) {
		t.Fatalf("expected AWAITING_APPROVAL -> COMPLETED")
	}
}

func TestCheckpointPercentsAreMonotonic(t *testing.T) {
	forward := []Stage{
		StagePending, StageExtracting, StageGenerating, StageMatching,
		StageComposing, StageScoring, StageAwaitingApproval, StageCompleted,
	}
	last := -1
	for _, stage := range forward {
		pct := stage.Percent()
		if pct < last {
			t.Fatalf("checkpoint percent regressed at %s: %d < %d", stage, pct, last)
		}
		if pct < 0 || pct > 100 {
			t.Fatalf("checkpoint percent out of range at %s: %d", stage, pct)
		}
		last = pct
	}
	if StageCompleted.Percent() != 100 {
		t.Fatalf("terminal percent should be 100, got %d", StageCompleted.Percent())
	}
}

func TestCloneIsDeep(t *testing.T) {
	completed := time.Now()
	state := JobState{
		JobID:   "job-1",
		Config:  Config{URL: "https://example.com", Formats: []string{"square"}},
		Stage:   StageScoring,
		Profile: &BrandProfile{BrandName: "Example", ValueProps: []string{"fast"}},
		Variants: []CopyVariant{
			{ID: "variant-1", ClaimsUsed: []string{"claim-1"}},
		},
		ComposedAds: []ComposedAd{
			{ID: "ad-1", Assets: []AdAsset{{Format: "square", URL: "out/ad-1.png"}}},
		},
		Scores: []VariantScore{
			{VariantID: "variant-1", Score: 80, Strengths: []string{"clear"}, Recommendations: []string{"shorten"}},
		},
		ApprovedVariantIDs: []string{"variant-1"},
		CompletedAt:        &completed,
	}
	clone := state.Clone()
	clone.Profile.BrandName = "Mutated"
	clone.Variants[0].ID = "mutated"
	clone.Variants[0].ClaimsUsed[0] = "mutated"
	clone.ComposedAds[0].Assets[0].URL = "mutated"
	clone.Scores[0].Strengths[0] = "mutated"
	clone.Scores[0].Recommendations[0] = "mutated"
	clone.ApprovedVariantIDs[0] = "mutated"
	clone.Config.Formats[0] = "mutated"

	if state.Profile.BrandName != "Example" {
		t.Fatalf("clone shares profile with original")
	}
	if state.Variants[0].ID != "variant-1" {
		t.Fatalf("clone shares variants with original")
	}
	if state.Variants[0].ClaimsUsed[0] != "claim-1" {
		t.Fatalf("clone shares variant claims with original")
	}
	if state.ComposedAds[0].Assets[0].URL != "out/ad-1.png" {
		t.Fatalf("clone shares composed ad assets with original")
	}
	if state.Scores[0].Strengths[0] != "clear" || state.Scores[0].Recommendations[0] != "shorten" {
		t.Fatalf("clone shares score notes with original")
	}
	if state.ApprovedVariantIDs[0] != "variant-1" {
		t.Fatalf("clone shares approved ids with original")
	}
	if state.Config.Formats[0] != "square" {
		t.Fatalf("clone shares config formats with original")
	}
}

func TestSnapshotProjection(t *testing.T) {
	state := JobState{
		JobID:   "job-2",
		Stage:   StageMatching,
		Percent: 45,
		Message: "matching images",
		Error:   "",
	}
	snap := state.Snapshot()
	if snap.JobID != "job-2" || snap.Stage != StageMatching || snap.Percent != 45 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestConfigNormalized(t *testing.T) {
	cfg, err := Config{URL: "  https://example.com  "}.Normalized()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.URL != "https://example.com" {
		t.Fatalf("expected trimmed url, got %q", cfg.URL)
	}
	if cfg.VariantCount != 3 || cfg.Platform != "meta" || cfg.Objective != "conversions" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Formats) == 0 {
		t.Fatalf("expected default formats")
	}
}

func TestConfigRejectsInvalidInput(t *testing.T) {
	cases := []Config{
		{},
		{URL: "ftp://example.com"},
		{URL: "https://example.com", VariantCount: -1},
		{URL: "https://example.com", VariantCount: 100},
	}
	for _, cfg := range cases {
		if _, err := cfg.Normalized(); err == nil {
			t.Fatalf("expected validation error for %+v", cfg)
		}
	}
}
