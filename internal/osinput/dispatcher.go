// internal/osinput/dispatcher.go
package osinput

import (
	"context"
	"time"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Dispatcher adapts a Device to the humanoid event-sink contract so the same
// trajectory and timing models drive OS-level input when no browser driver is
// present.
type Dispatcher struct {
	device Device
}

// NewDispatcher wraps device.
func NewDispatcher(device Device) *Dispatcher {
	return &Dispatcher{device: device}
}

// Sleep pauses, respecting context cancellation.
func (d *Dispatcher) Sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DispatchMouseEvent translates synthesized mouse events into device calls.
// Press events map to a click on release so single clicks are not doubled.
func (d *Dispatcher) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	switch data.Type {
	case schemas.MouseMove:
		return d.device.MovePointer(ctx, data.X, data.Y)
	case schemas.MousePress:
		// The release carries the click; moving first keeps the position exact.
		return d.device.MovePointer(ctx, data.X, data.Y)
	case schemas.MouseRelease:
		return d.device.Click(ctx)
	case schemas.MouseWheel:
		return d.device.Scroll(ctx, int(data.DeltaY))
	}
	return nil
}

// SendKeys types each rune through the device.
func (d *Dispatcher) SendKeys(ctx context.Context, keys string) error {
	for _, r := range keys {
		if err := d.device.TypeChar(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
