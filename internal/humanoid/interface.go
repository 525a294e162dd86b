// internal/humanoid/interface.go
package humanoid

import (
	"context"
	"time"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Dispatcher is the low-level sink for synthesized input events. It is
// deliberately agnostic of the underlying technology: a chromedp session and
// an OS-level input device both satisfy it, so the same timing and trajectory
// models drive either backend.
type Dispatcher interface {
	// Sleep pauses execution, respecting context cancellation.
	Sleep(ctx context.Context, d time.Duration) error

	// DispatchMouseEvent sends a mouse event using agnostic data structures.
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error

	// SendKeys sends the specified keys to the currently focused element.
	SendKeys(ctx context.Context, keys string) error
}

// Controller is the high-level surface the action executor programs against.
type Controller interface {
	// MoveTo moves the pointer to target along a human-like trajectory.
	MoveTo(ctx context.Context, target Vector2D, field *PotentialField) error
	// ClickAt moves to a realistic point inside geo, dwells briefly, then
	// clicks.
	ClickAt(ctx context.Context, geo *schemas.ElementGeometry) error
	// Click presses and releases at the current pointer position.
	Click(ctx context.Context) error
	// TypeText emits text with per-character randomized delays.
	TypeText(ctx context.Context, text string) error
	// Scroll performs an inertial scroll of roughly amount pixels, split into
	// several decelerating increments.
	Scroll(ctx context.Context, amount int) error
	// CognitivePause idles for a normally-distributed thinking pause.
	CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error
}
