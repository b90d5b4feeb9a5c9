package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adforge/adforge/internal/campaign"
	"github.com/adforge/adforge/internal/metrics"
	"github.com/adforge/adforge/internal/pipeline"
	"github.com/adforge/adforge/internal/providers"
	"github.com/adforge/adforge/internal/retry"
)

// run is the in-process execution of one job. Its state is mutated only by
// the goroutine executing the pipeline; readers take the mutex and work on
// copies. ctx and cancel are set at construction, before the run is ever
// visible in the registry, so Cancel never observes a half-built run.
type run struct {
	mu          sync.Mutex
	state       pipeline.JobState
	heartbeatAt time.Time
	subscribers []chan pipeline.ProgressSnapshot

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	decisionOnce sync.Once
	decision     chan pipeline.ApprovalDecision
}

func newRun(state pipeline.JobState) *run {
	ctx, cancel := context.WithCancel(context.Background())
	return &run{
		state:    state,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		decision: make(chan pipeline.ApprovalDecision, 1),
	}
}

func (r *run) cloneState() pipeline.JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// resolve records the approval decision exactly once.
func (r *run) resolve(decision pipeline.ApprovalDecision) bool {
	resolved := false
	r.decisionOnce.Do(func() {
		r.decision <- decision
		resolved = true
	})
	return resolved
}

// step binds one pipeline stage to the function producing its result.
type step struct {
	contract providers.Contract
	message  string
	invoke   func(ctx context.Context, r *run) error
}

func (e *Engine) steps() []step {
	return []step{
		{providers.ExtractionContract, "analyzing landing page", e.runExtraction},
		{providers.GenerationContract, "generating ad copy", e.runGeneration},
		{providers.MatchingContract, "matching images", e.runMatching},
		{providers.CompositionContract, "composing ads", e.runComposition},
		{providers.ScoringContract, "scoring variants", e.runScoring},
	}
}

// execute drives the fixed stage sequence starting at from, which is
// StagePending for fresh jobs or a persisted stage for resumed ones.
func (e *Engine) execute(ctx context.Context, r *run, from pipeline.Stage) {
	defer r.closeSubscribers()

	steps := e.steps()
	start := 0
	if from != pipeline.StagePending && from != pipeline.StageAwaitingApproval {
		for i, st := range steps {
			if st.contract.Stage == from {
				start = i
				break
			}
		}
	}
	if from != pipeline.StageAwaitingApproval {
		for _, st := range steps[start:] {
			if err := e.enterStage(ctx, r, st.contract.Stage, st.message); err != nil {
				if canceled(err) {
					e.finishCancelled(ctx, r)
					return
				}
				e.finishFailed(ctx, r, err)
				return
			}
			if err := st.invoke(ctx, r); err != nil {
				if canceled(err) {
					e.finishCancelled(ctx, r)
					return
				}
				e.finishFailed(ctx, r, fmt.Errorf("%s: %w", st.contract.Name, err))
				return
			}
		}
	}
	if err := e.enterStage(ctx, r, pipeline.StageAwaitingApproval, "awaiting approval"); err != nil {
		if canceled(err) {
			e.finishCancelled(ctx, r)
			return
		}
		e.finishFailed(ctx, r, err)
		return
	}
	e.logger.Info("approval gate open", "job_id", r.jobID(), "timeout", e.approvalTimeout)
	decision, err := e.awaitApproval(ctx, r)
	if err != nil {
		e.finishCancelled(ctx, r)
		return
	}
	e.finishResolved(ctx, r, decision)
}

// enterStage publishes the stage's checkpoint percent and persists the
// snapshot before the stage's work begins. The previous stage's result is
// therefore durable before the next collaborator call is issued. Re-entry
// into the current stage is allowed so resumed jobs can redo the stage they
// were interrupted in.
func (e *Engine) enterStage(ctx context.Context, r *run, stage pipeline.Stage, message string) error {
	r.mu.Lock()
	if r.state.Stage != stage && !r.state.Stage.CanTransition(stage) {
		current := r.state.Stage
		r.mu.Unlock()
		return fmt.Errorf("engine: invalid transition %s -> %s", current, stage)
	}
	r.state.Stage = stage
	r.state.Percent = stage.Percent()
	r.state.Message = message
	r.state.UpdatedAt = e.now()
	snapshot := r.state.Clone()
	r.mu.Unlock()

	e.logger.Info("stage started", "job_id", snapshot.JobID, "stage", stage, "percent", snapshot.Percent)
	if err := e.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("engine: persist %s snapshot: %w", stage, err)
	}
	r.publish()
	return nil
}

// invokeContract wraps one collaborator call (or one fan-out item) with the
// contract's timeout and retry policy.
func (e *Engine) invokeContract(ctx context.Context, jobID string, c providers.Contract, fn func(context.Context) error) error {
	opts := append([]retry.Option{
		retry.WithOnRetry(func(attempt int, cause error) {
			metrics.StageRetries.WithLabelValues(c.Name).Inc()
			e.logger.Warn("stage retrying",
				"job_id", jobID, "stage", c.Name, "attempt", attempt, "error", cause)
		}),
	}, e.retryOpts...)
	started := time.Now()
	err := retry.Do(ctx, c.Policy, func(ctx context.Context) error {
		callCtx, cancelCall := context.WithTimeout(ctx, c.Timeout)
		defer cancelCall()
		return fn(callCtx)
	}, opts...)
	metrics.ObserveStage(c.Name, time.Since(started))
	return err
}

// finishFailed marks the job FAILED, keeping every prior stage result so
// callers can inspect how far the run progressed.
func (e *Engine) finishFailed(ctx context.Context, r *run, cause error) {
	e.finalize(ctx, r, func(state *pipeline.JobState) {
		state.Stage = pipeline.StageFailed
		state.Error = cause.Error()
		state.Message = "pipeline failed"
	})
	e.logger.Error("job failed", "job_id", r.jobID(), "error", cause)
}

func (e *Engine) finishCancelled(ctx context.Context, r *run) {
	e.finalize(ctx, r, func(state *pipeline.JobState) {
		state.Stage = pipeline.StageCancelled
		state.Message = "cancelled"
	})
	e.logger.Info("job cancelled", "job_id", r.jobID())
}

// finishResolved applies the approval gate outcome: APPROVED on an explicit
// decision (including reject-all), COMPLETED when the gate timed out.
func (e *Engine) finishResolved(ctx context.Context, r *run, decision pipeline.ApprovalDecision) {
	e.finalize(ctx, r, func(state *pipeline.JobState) {
		if decision.Received {
			state.Stage = pipeline.StageApproved
			state.ApprovedVariantIDs = decision.VariantIDs
			state.Message = fmt.Sprintf("approved %d variant(s)", len(decision.VariantIDs))
		} else {
			state.Stage = pipeline.StageCompleted
			state.AutoCompleted = true
			state.Message = "completed without review"
		}
	})
	e.logger.Info("job finished", "job_id", r.jobID(), "stage", r.cloneState().Stage)
}

// finalize applies the terminal mutation, stamps duration from a single
// clock read, persists the last snapshot, and notifies the side-channel.
func (e *Engine) finalize(ctx context.Context, r *run, apply func(*pipeline.JobState)) {
	now := e.now()
	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return
	}
	apply(&r.state)
	r.state.Percent = r.state.Stage.Percent()
	completed := now
	r.state.CompletedAt = &completed
	r.state.Duration = now.Sub(r.state.StartedAt)
	r.state.UpdatedAt = now
	snapshot := r.state.Clone()
	r.mu.Unlock()

	metrics.JobsFinished.WithLabelValues(string(snapshot.Stage)).Inc()

	// The run context may already be cancelled; the terminal snapshot must
	// still be persisted.
	saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelSave()
	if err := e.store.Save(saveCtx, snapshot); err != nil {
		e.logger.Error("persist terminal snapshot failed", "job_id", snapshot.JobID, "error", err)
	}
	if snapshot.Stage == pipeline.StageApproved || snapshot.Stage == pipeline.StageCompleted {
		if err := e.recorder.Record(saveCtx, campaign.FromState(snapshot)); err != nil {
			e.logger.Warn("campaign side-channel failed", "job_id", snapshot.JobID, "error", err)
		}
	}
	r.publish()
	close(r.done)
	// The terminal snapshot is durable; drop the run so the registry does not
	// accumulate finished jobs. Queries fall back to the store from here on.
	e.unregister(snapshot.JobID)
}

func (r *run) jobID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.JobID
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
