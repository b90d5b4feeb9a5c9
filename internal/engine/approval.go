package engine

import (
	"context"
	"time"

	"github.com/adforge/adforge/internal/pipeline"
)

// awaitApproval blocks the job's stage pointer, not the process, until one
// of three things happens: an explicit decision arrives (approve or
// reject-all), the gate timeout elapses, or the run is cancelled. Progress
// and state queries keep working the whole time and never consume the
// pending decision.
//
// A timeout is not an error: the job completes without sign-off and the
// empty decision records that no human reviewed it.
func (e *Engine) awaitApproval(ctx context.Context, r *run) (pipeline.ApprovalDecision, error) {
	timer := time.NewTimer(e.approvalTimeout)
	defer timer.Stop()
	select {
	case decision := <-r.decision:
		return decision, nil
	case <-timer.C:
		return pipeline.ApprovalDecision{}, nil
	case <-ctx.Done():
		return pipeline.ApprovalDecision{}, ctx.Err()
	}
}
