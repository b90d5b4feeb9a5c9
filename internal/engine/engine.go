// Package engine drives end-to-end pipeline runs: it sequences stages,
// retries transient collaborator failures, persists the job snapshot after
// every transition, and pauses at the approval gate before finishing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adforge/adforge/internal/campaign"
	"github.com/adforge/adforge/internal/logging"
	"github.com/adforge/adforge/internal/metrics"
	"github.com/adforge/adforge/internal/pipeline"
	"github.com/adforge/adforge/internal/providers"
	"github.com/adforge/adforge/internal/retry"
	"github.com/adforge/adforge/internal/store"
)

// ErrJobNotFound is returned when a job id is unknown to the engine and the
// store.
var ErrJobNotFound = errors.New("engine: job not found")

// ErrJobNotLive is returned when a blocking query targets a non-terminal
// job that is not executing in this process. Resume it first.
var ErrJobNotLive = errors.New("engine: job is not running in this process")

// ErrDecisionAlreadyMade is returned when an approval signal arrives after
// the gate has already been resolved.
var ErrDecisionAlreadyMade = errors.New("engine: approval decision already recorded")

const defaultApprovalTimeout = 72 * time.Hour

// Engine owns the process-scoped job registry. It is passed by reference to
// whatever surface drives it; there is no ambient global state, so multiple
// engines can coexist in one process (tests rely on this).
type Engine struct {
	store    store.JobStore
	set      providers.Set
	recorder campaign.Recorder
	logger   *slog.Logger
	clock    func() time.Time

	approvalTimeout  time.Duration
	imagesPerVariant int
	matchParallel    int
	outputDir        string
	retryOpts        []retry.Option

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger replaces the default discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder wires the best-effort campaign side-channel.
func WithRecorder(recorder campaign.Recorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

// WithApprovalTimeout overrides how long the approval gate waits before the
// job completes without an explicit decision.
func WithApprovalTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.approvalTimeout = timeout
		}
	}
}

// WithMatching tunes the image-matching fan-out: images requested per
// variant and the worker-pool concurrency cap.
func WithMatching(imagesPerVariant, maxParallel int) Option {
	return func(e *Engine) {
		if imagesPerVariant > 0 {
			e.imagesPerVariant = imagesPerVariant
		}
		if maxParallel > 0 {
			e.matchParallel = maxParallel
		}
	}
}

// WithOutputDir sets where composed ad assets are written.
func WithOutputDir(dir string) Option {
	return func(e *Engine) {
		if dir != "" {
			e.outputDir = dir
		}
	}
}

// WithRetryOptions forwards options to every stage retry loop. Tests use it
// to strip real backoff sleeps.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(e *Engine) {
		e.retryOpts = append(e.retryOpts, opts...)
	}
}

// New wires an engine to its snapshot store and collaborator set.
func New(jobs store.JobStore, set providers.Set, opts ...Option) (*Engine, error) {
	if jobs == nil {
		return nil, fmt.Errorf("engine: job store is required")
	}
	if set.Extractor == nil || set.Generator == nil || set.Matcher == nil || set.Composer == nil || set.Scorer == nil {
		return nil, fmt.Errorf("engine: all collaborators are required")
	}
	e := &Engine{
		store:            jobs,
		set:              set,
		recorder:         campaign.Nop{},
		logger:           logging.New(io.Discard, slog.LevelInfo),
		clock:            time.Now,
		approvalTimeout:  defaultApprovalTimeout,
		imagesPerVariant: 3,
		matchParallel:    4,
		outputDir:        "output",
		runs:             map[string]*run{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start allocates a fresh job, persists its PENDING snapshot, and launches
// the run as an independent concurrent task. It returns the job id
// immediately.
func (e *Engine) Start(ctx context.Context, cfg pipeline.Config) (string, error) {
	normalized, err := cfg.Normalized()
	if err != nil {
		return "", err
	}
	now := e.now()
	state := pipeline.JobState{
		JobID:       uuid.NewString(),
		Config:      normalized,
		Stage:       pipeline.StagePending,
		Percent:     pipeline.StagePending.Percent(),
		Message:     "queued",
		CampaignRef: normalized.CampaignRef,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	r, err := e.register(state)
	if err != nil {
		return "", err
	}
	if err := e.store.Save(ctx, state.Clone()); err != nil {
		e.unregister(state.JobID)
		r.cancel()
		return "", fmt.Errorf("engine: persist initial snapshot: %w", err)
	}
	metrics.JobsStarted.WithLabelValues(normalized.Platform, normalized.Objective).Inc()
	e.launch(r, pipeline.StagePending)
	return state.JobID, nil
}

// Resume re-enters the state machine for a persisted, non-terminal job at
// its stored stage, feeding it the already-persisted predecessor outputs.
// It never restarts a job from PENDING.
func (e *Engine) Resume(ctx context.Context, jobID string) error {
	e.mu.Lock()
	_, live := e.runs[jobID]
	e.mu.Unlock()
	if live {
		return fmt.Errorf("engine: job %s is already running", jobID)
	}
	state, err := e.store.Load(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrJobNotFound
		}
		return err
	}
	if state.Terminal() {
		return fmt.Errorf("engine: job %s already finished in %s", jobID, state.Stage)
	}
	r, err := e.register(state)
	if err != nil {
		return err
	}
	e.logger.Info("resuming job", "job_id", jobID, "stage", state.Stage)
	e.launch(r, state.Stage)
	return nil
}

func (e *Engine) register(state pipeline.JobState) (*run, error) {
	r := newRun(state)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		r.cancel()
		return nil, fmt.Errorf("engine: closed")
	}
	if _, exists := e.runs[state.JobID]; exists {
		r.cancel()
		return nil, fmt.Errorf("engine: job %s is already registered", state.JobID)
	}
	e.runs[state.JobID] = r
	return r, nil
}

func (e *Engine) launch(r *run, from pipeline.Stage) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer r.cancel()
		e.execute(r.ctx, r, from)
	}()
}

// Progress returns the non-blocking progress projection for a job. It never
// fails for a known job, including FAILED and CANCELLED ones.
func (e *Engine) Progress(ctx context.Context, jobID string) (pipeline.ProgressSnapshot, error) {
	if r := e.lookup(jobID); r != nil {
		return r.snapshot(), nil
	}
	state, err := e.store.Load(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return pipeline.ProgressSnapshot{}, ErrJobNotFound
		}
		return pipeline.ProgressSnapshot{}, err
	}
	return state.Snapshot(), nil
}

// State returns the current full snapshot without blocking.
func (e *Engine) State(ctx context.Context, jobID string) (pipeline.JobState, error) {
	if r := e.lookup(jobID); r != nil {
		return r.cloneState(), nil
	}
	state, err := e.store.Load(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return pipeline.JobState{}, ErrJobNotFound
		}
		return pipeline.JobState{}, err
	}
	return state, nil
}

// Result blocks until the job reaches a terminal stage, then returns the
// final snapshot. Callers needing a non-blocking view use State instead.
func (e *Engine) Result(ctx context.Context, jobID string) (pipeline.JobState, error) {
	if r := e.lookup(jobID); r != nil {
		select {
		case <-r.done:
			return r.cloneState(), nil
		case <-ctx.Done():
			return pipeline.JobState{}, ctx.Err()
		}
	}
	state, err := e.State(ctx, jobID)
	if err != nil {
		return pipeline.JobState{}, err
	}
	if !state.Terminal() {
		return pipeline.JobState{}, ErrJobNotLive
	}
	return state, nil
}

// List returns the most recently modified jobs from the store.
func (e *Engine) List(ctx context.Context, limit int) ([]pipeline.JobState, error) {
	return e.store.List(ctx, limit)
}

// Approve resolves the approval gate with an explicit variant selection.
// The decision is set exactly once; later signals fail with
// ErrDecisionAlreadyMade.
func (e *Engine) Approve(jobID string, variantIDs []string) error {
	return e.signal(jobID, pipeline.ApprovalDecision{
		VariantIDs: append([]string(nil), variantIDs...),
		Received:   true,
	})
}

// RejectAll resolves the approval gate with an empty approval set.
func (e *Engine) RejectAll(jobID string) error {
	return e.signal(jobID, pipeline.ApprovalDecision{Received: true})
}

func (e *Engine) signal(jobID string, decision pipeline.ApprovalDecision) error {
	r := e.lookup(jobID)
	if r == nil {
		state, err := e.store.Load(context.Background(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if state.Terminal() {
			return ErrDecisionAlreadyMade
		}
		return ErrJobNotLive
	}
	if r.cloneState().Terminal() {
		return ErrDecisionAlreadyMade
	}
	if !r.resolve(decision) {
		return ErrDecisionAlreadyMade
	}
	return nil
}

// Cancel requests cooperative cancellation. The run observes it at its next
// suspension point and finishes in CANCELLED, retaining completed stage
// results. Cancelling a job that already finished is a no-op.
func (e *Engine) Cancel(jobID string) error {
	r := e.lookup(jobID)
	if r == nil {
		state, err := e.store.Load(context.Background(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if state.Terminal() {
			return nil
		}
		return ErrJobNotLive
	}
	r.cancel()
	return nil
}

// Watch subscribes to a live job's progress stream. The channel receives the
// current snapshot immediately and closes once the job reaches a terminal
// stage. Finished jobs are no longer registered; query State instead.
func (e *Engine) Watch(jobID string) (<-chan pipeline.ProgressSnapshot, error) {
	r := e.lookup(jobID)
	if r == nil {
		return nil, ErrJobNotFound
	}
	return r.subscribe(), nil
}

// Close cancels every live run and waits for them to finish. The engine
// accepts no new jobs afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for _, r := range e.runs {
		r.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) unregister(jobID string) {
	e.mu.Lock()
	delete(e.runs, jobID)
	e.mu.Unlock()
}

func (e *Engine) lookup(jobID string) *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs[jobID]
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
