// internal/humanoid/scroll.go
package humanoid

import (
	"context"
	"math"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Scroll performs an inertial scroll of roughly amount pixels (positive is
// down). The total delta is split into several wheel increments whose sizes
// decay toward the end of the gesture, with randomized pauses between them.
func (h *Humanoid) Scroll(ctx context.Context, amount int) error {
	if amount == 0 {
		return nil
	}

	increments := h.cfg.ScrollIncrements
	if increments < 2 {
		increments = 2
	}

	// Decaying weights: early increments carry most of the distance.
	weights := make([]float64, increments)
	total := 0.0
	for i := range weights {
		weights[i] = math.Pow(0.72, float64(i))
		total += weights[i]
	}

	h.mu.Lock()
	pos := h.currentPos
	h.mu.Unlock()

	remaining := amount
	for i := 0; i < increments; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var delta int
		if i == increments-1 {
			delta = remaining // don't drop rounding residue
		} else {
			delta = int(float64(amount) * weights[i] / total)
		}
		remaining -= delta
		if delta == 0 {
			continue
		}

		event := schemas.MouseEventData{
			Type:   schemas.MouseWheel,
			X:      pos.X,
			Y:      pos.Y,
			Button: schemas.ButtonNone,
			DeltaY: float64(delta),
		}
		if err := h.dispatcher.DispatchMouseEvent(ctx, event); err != nil {
			return err
		}

		// Pause between flicks; slightly longer near the end as the gesture
		// settles.
		settle := 1.0 + 0.4*float64(i)/float64(increments)
		if err := h.dispatcher.Sleep(ctx, h.randDurationMs(60*settle, 20, 25)); err != nil {
			return err
		}
	}
	return nil
}
