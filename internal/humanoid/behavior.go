// internal/humanoid/behavior.go
package humanoid

import (
	"context"
	"time"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// CognitivePause simulates the time a user takes to think before the next
// action. Longer pauses idle the cursor with micro-movements instead of
// freezing it.
func (h *Humanoid) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	duration := h.randDurationMs(meanMs, stdDevMs, 0)
	if duration <= 0 {
		return nil
	}
	if duration > 100*time.Millisecond {
		return h.hesitate(ctx, duration)
	}
	return h.dispatcher.Sleep(ctx, duration)
}

// hesitate idles with subtle continuous cursor drift around the current
// position for the given duration.
func (h *Humanoid) hesitate(ctx context.Context, duration time.Duration) error {
	h.mu.Lock()
	startPos := h.currentPos
	h.mu.Unlock()

	startTime := time.Now()
	for time.Since(startTime) < duration {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		h.mu.Lock()
		target := startPos.Add(Vector2D{
			X: (h.rng.Float64() - 0.5) * 5,
			Y: (h.rng.Float64() - 0.5) * 5,
		})
		randInt := h.rng.Intn(100)
		h.mu.Unlock()

		event := schemas.MouseEventData{
			Type:   schemas.MouseMove,
			X:      target.X,
			Y:      target.Y,
			Button: schemas.ButtonNone,
		}
		if err := h.dispatcher.DispatchMouseEvent(ctx, event); err != nil {
			return err
		}

		h.mu.Lock()
		h.currentPos = target
		h.mu.Unlock()

		pause := time.Duration(50+randInt) * time.Millisecond
		if remaining := duration - time.Since(startTime); pause > remaining {
			pause = remaining
		}
		if pause <= 0 {
			break
		}
		if err := h.dispatcher.Sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}
