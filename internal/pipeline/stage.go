package pipeline

// Stage enumerates the phases a pipeline job moves through. The order is
// fixed: a job advances PENDING → EXTRACTING → GENERATING → MATCHING →
// COMPOSING → SCORING → AWAITING_APPROVAL and finishes in APPROVED or
// COMPLETED. FAILED and CANCELLED are reachable from any non-terminal stage.
type Stage string

const (
	StagePending          Stage = "PENDING"
	StageExtracting       Stage = "EXTRACTING"
	StageGenerating       Stage = "GENERATING"
	StageMatching         Stage = "MATCHING"
	StageComposing        Stage = "COMPOSING"
	StageScoring          Stage = "SCORING"
	StageAwaitingApproval Stage = "AWAITING_APPROVAL"
	StageApproved         Stage = "APPROVED"
	StageCompleted        Stage = "COMPLETED"
	StageFailed           Stage = "FAILED"
	StageCancelled        Stage = "CANCELLED"
)

// stageOrder indexes the forward path. Terminal and exceptional stages are
// handled separately.
var stageOrder = map[Stage]int{
	StagePending:          0,
	StageExtracting:       1,
	StageGenerating:       2,
	StageMatching:         3,
	StageComposing:        4,
	StageScoring:          5,
	StageAwaitingApproval: 6,
}

// checkpointPercent maps each stage to the progress value published before
// the stage's work begins. The values are pre-assigned so concurrent readers
// always observe a non-decreasing sequence regardless of in-flight item
// counts.
var checkpointPercent = map[Stage]int{
	StagePending:          0,
	StageExtracting:       10,
	StageGenerating:       25,
	StageMatching:         45,
	StageComposing:        65,
	StageScoring:          85,
	StageAwaitingApproval: 95,
	StageApproved:         100,
	StageCompleted:        100,
	StageFailed:           100,
	StageCancelled:        100,
}

// Terminal reports whether no further transitions may occur.
func (s Stage) Terminal() bool {
	switch s {
	case StageApproved, StageCompleted, StageFailed, StageCancelled:
		return true
	}
	return false
}

// Percent returns the checkpoint progress value published on entry to the
// stage.
func (s Stage) Percent() int {
	if pct, ok := checkpointPercent[s]; ok {
		return pct
	}
	return 0
}

// CanTransition reports whether moving from s to next respects the fixed
// stage order. FAILED and CANCELLED are valid successors of every
// non-terminal stage; terminal stages accept nothing.
func (s Stage) CanTransition(next Stage) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StageFailed, StageCancelled:
		return true
	case StageApproved, StageCompleted:
		return s == StageAwaitingApproval
	}
	from, okFrom := stageOrder[s]
	to, okTo := stageOrder[next]
	return okFrom && okTo && to == from+1
}

// Known reports whether s is one of the defined stages.
func (s Stage) Known() bool {
	if s.Terminal() {
		return true
	}
	_, ok := stageOrder[s]
	return ok
}
