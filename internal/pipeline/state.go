package pipeline

import (
	"time"
)

// JobState is the aggregate snapshot persisted after every stage
// transition. It is owned and mutated exclusively by the engine run driving
// the job; once the job reaches a terminal stage the state becomes a
// read-only artifact retrievable from the store.
type JobState struct {
	JobID    string   `json:"job_id"`
	Config   Config   `json:"config"`
	Stage    Stage    `json:"current_stage"`
	Percent  int      `json:"progress_percent"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	Profile     *BrandProfile  `json:"profile,omitempty"`
	Variants    []CopyVariant  `json:"variants,omitempty"`
	Matches     []ImageMatch   `json:"matches,omitempty"`
	ComposedAds []ComposedAd   `json:"composed_ads,omitempty"`
	Scores      []VariantScore `json:"scores,omitempty"`

	ApprovedVariantIDs []string `json:"approved_variant_ids,omitempty"`
	// AutoCompleted records that the approval gate timed out and the job
	// finished without an explicit human decision.
	AutoCompleted bool   `json:"auto_completed,omitempty"`
	CampaignRef   string `json:"campaign_ref,omitempty"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Terminal reports whether the job finished in APPROVED, COMPLETED, FAILED,
// or CANCELLED.
func (s JobState) Terminal() bool {
	return s.Stage.Terminal()
}

// Snapshot projects the queryable progress view. It copies only scalar
// fields, so readers never alias the job's mutable slices.
func (s JobState) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		JobID:   s.JobID,
		Stage:   s.Stage,
		Percent: s.Percent,
		Message: s.Message,
		Error:   s.Error,
	}
}

// Clone returns a deep copy safe to hand to readers and the store while the
// run keeps mutating the original.
func (s JobState) Clone() JobState {
	out := s
	out.Config = s.Config.Clone()
	out.Warnings = cloneStrings(s.Warnings)
	out.ApprovedVariantIDs = cloneStrings(s.ApprovedVariantIDs)
	if s.Profile != nil {
		profile := *s.Profile
		profile.ValueProps = cloneStrings(s.Profile.ValueProps)
		profile.Claims = append([]Claim(nil), s.Profile.Claims...)
		profile.ToneMarkers = append([]ToneMarker(nil), s.Profile.ToneMarkers...)
		out.Profile = &profile
	}
	if s.CompletedAt != nil {
		completed := *s.CompletedAt
		out.CompletedAt = &completed
	}
	out.Variants = append([]CopyVariant(nil), s.Variants...)
	for i := range out.Variants {
		out.Variants[i].ClaimsUsed = cloneStrings(out.Variants[i].ClaimsUsed)
	}
	out.Matches = append([]ImageMatch(nil), s.Matches...)
	out.ComposedAds = append([]ComposedAd(nil), s.ComposedAds...)
	for i := range out.ComposedAds {
		out.ComposedAds[i].Assets = append([]AdAsset(nil), out.ComposedAds[i].Assets...)
	}
	out.Scores = append([]VariantScore(nil), s.Scores...)
	for i := range out.Scores {
		out.Scores[i].Strengths = cloneStrings(out.Scores[i].Strengths)
		out.Scores[i].Weaknesses = cloneStrings(out.Scores[i].Weaknesses)
		out.Scores[i].Recommendations = cloneStrings(out.Scores[i].Recommendations)
	}
	return out
}

// ProgressSnapshot is the non-blocking projection of a running job. Queries
// return it best-effort for every job, including FAILED and CANCELLED ones.
type ProgressSnapshot struct {
	JobID   string `json:"job_id"`
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	// HeartbeatAt is bumped by long multi-item stages so a supervisor can
	// tell slow from stuck.
	HeartbeatAt time.Time `json:"heartbeat_at,omitempty"`
}

// ApprovalDecision resolves the approval gate. Received distinguishes an
// explicit decision (approve or reject-all) from a gate timeout.
type ApprovalDecision struct {
	VariantIDs []string
	Received   bool
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
