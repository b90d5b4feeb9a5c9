// Package campaign is the optional best-effort persistence side-channel.
// The engine hands it campaign and variant records at job completion;
// recorder failures are logged by the caller and never fail the pipeline.
package campaign

import (
	"context"
	"time"

	"github.com/adforge/adforge/internal/pipeline"
)

// Record is the document published for one finished job.
type Record struct {
	JobID              string                  `json:"job_id"`
	CampaignRef        string                  `json:"campaign_ref,omitempty"`
	Platform           string                  `json:"platform"`
	Objective          string                  `json:"objective"`
	Stage              pipeline.Stage          `json:"stage"`
	ApprovedVariantIDs []string                `json:"approved_variant_ids,omitempty"`
	Variants           []pipeline.CopyVariant  `json:"variants,omitempty"`
	Scores             []pipeline.VariantScore `json:"scores,omitempty"`
	FinishedAt         time.Time               `json:"finished_at"`
}

// Recorder receives campaign records. Implementations must be safe for
// concurrent use by independent jobs.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Nop discards every record. It is the default when no side-channel is
// configured.
type Nop struct{}

func (Nop) Record(context.Context, Record) error { return nil }

// FromState builds the record published for a terminal job state.
func FromState(state pipeline.JobState) Record {
	finished := state.UpdatedAt
	if state.CompletedAt != nil {
		finished = *state.CompletedAt
	}
	return Record{
		JobID:              state.JobID,
		CampaignRef:        state.CampaignRef,
		Platform:           state.Config.Platform,
		Objective:          state.Config.Objective,
		Stage:              state.Stage,
		ApprovedVariantIDs: append([]string(nil), state.ApprovedVariantIDs...),
		Variants:           append([]pipeline.CopyVariant(nil), state.Variants...),
		Scores:             append([]pipeline.VariantScore(nil), state.Scores...),
		FinishedAt:         finished,
	}
}
