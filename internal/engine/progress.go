package engine

import (
	"time"

	"github.com/adforge/adforge/internal/pipeline"
)

// Progress queries and the subscription stream read from the run's mutex-
// guarded state, never from the executing goroutine's control flow, so they
// stay responsive while the job is suspended in a stage call or at the
// approval gate.

const subscriberBuffer = 16

func (r *run) snapshot() pipeline.ProgressSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.state.Snapshot()
	snap.HeartbeatAt = r.heartbeatAt
	return snap
}

// heartbeat bumps the liveness timestamp and message during long multi-item
// stages. It does not touch the checkpoint percent, so progress stays
// monotonic, and it is not persisted; heartbeats are an in-process signal.
func (r *run) heartbeat(message string) {
	r.mu.Lock()
	r.state.Message = message
	r.heartbeatAt = time.Now()
	r.mu.Unlock()
	r.publish()
}

// subscribe registers a progress channel. The current snapshot is delivered
// immediately; the channel closes when the run reaches a terminal stage.
func (r *run) subscribe() <-chan pipeline.ProgressSnapshot {
	ch := make(chan pipeline.ProgressSnapshot, subscriberBuffer)
	r.mu.Lock()
	terminal := r.state.Terminal()
	snap := r.state.Snapshot()
	snap.HeartbeatAt = r.heartbeatAt
	if !terminal {
		r.subscribers = append(r.subscribers, ch)
	}
	r.mu.Unlock()
	ch <- snap
	if terminal {
		close(ch)
	}
	return ch
}

// publish fans the current snapshot out to subscribers. Slow consumers drop
// updates rather than block the pipeline.
func (r *run) publish() {
	r.mu.Lock()
	snap := r.state.Snapshot()
	snap.HeartbeatAt = r.heartbeatAt
	subscribers := append([]chan pipeline.ProgressSnapshot(nil), r.subscribers...)
	r.mu.Unlock()
	for _, ch := range subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (r *run) closeSubscribers() {
	r.mu.Lock()
	subscribers := r.subscribers
	r.subscribers = nil
	r.mu.Unlock()
	for _, ch := range subscribers {
		close(ch)
	}
}
