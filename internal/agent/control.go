// internal/agent/control.go
package agent

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned from Checkpoint once the token is stopped; the
// in-flight step is abandoned and the run reports Aborted.
var ErrStopped = errors.New("agent: execution stopped")

// ControlToken is the cooperative pause/stop flag threaded through every
// suspend point. Pausing blocks callers at the next Checkpoint; stopping
// releases them with ErrStopped.
type ControlToken struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
	resume  chan struct{}
}

func NewControlToken() *ControlToken {
	return &ControlToken{resume: make(chan struct{})}
}

// Pause suspends execution at the next checkpoint. Idempotent.
func (t *ControlToken) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused && !t.stopped {
		t.paused = true
		t.resume = make(chan struct{})
	}
}

// Resume releases paused callers. Idempotent.
func (t *ControlToken) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		t.paused = false
		close(t.resume)
	}
}

// Stop terminates the run at the next checkpoint, releasing any paused
// waiters. Idempotent.
func (t *ControlToken) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.paused {
		t.paused = false
		close(t.resume)
	}
}

// Stopped reports whether Stop has been called.
func (t *ControlToken) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Checkpoint is the poll point. It returns immediately when running, blocks
// while paused, and fails with ErrStopped after a stop.
func (t *ControlToken) Checkpoint(ctx context.Context) error {
	for {
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return ErrStopped
		}
		if !t.paused {
			t.mu.Unlock()
			return ctx.Err()
		}
		resume := t.resume
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}
