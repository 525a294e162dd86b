// internal/osinput/memory.go
package osinput

import (
	"context"
	"sync"
)

// PointerEvent records one pointer interaction on a MemoryDevice.
type PointerEvent struct {
	Kind   string // "move", "click", "scroll", "press", "type"
	X, Y   float64
	Amount int
	Key    string
	Char   rune
}

// MemoryDevice is an in-memory Device that records every event it receives.
// It backs tests and the degraded no-driver mode when no real device backend
// is wired.
type MemoryDevice struct {
	width, height float64

	mu     sync.Mutex
	x, y   float64
	events []PointerEvent
	shot   []byte
}

// NewMemoryDevice creates a device with the given virtual screen size.
func NewMemoryDevice(width, height float64) *MemoryDevice {
	if width <= 0 {
		width = 1920
	}
	if height <= 0 {
		height = 1080
	}
	return &MemoryDevice{width: width, height: height}
}

// SetScreenshot sets the bytes returned by Screenshot.
func (d *MemoryDevice) SetScreenshot(png []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shot = png
}

// Events returns a copy of the recorded events.
func (d *MemoryDevice) Events() []PointerEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PointerEvent, len(d.events))
	copy(out, d.events)
	return out
}

// Pointer returns the current pointer position.
func (d *MemoryDevice) Pointer() (x, y float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x, d.y
}

func (d *MemoryDevice) record(ev PointerEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *MemoryDevice) MovePointer(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.x, d.y = x, y
	d.events = append(d.events, PointerEvent{Kind: "move", X: x, Y: y})
	d.mu.Unlock()
	return nil
}

func (d *MemoryDevice) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x, y := d.Pointer()
	d.record(PointerEvent{Kind: "click", X: x, Y: y})
	return nil
}

func (d *MemoryDevice) TypeChar(ctx context.Context, c rune) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.record(PointerEvent{Kind: "type", Char: c})
	return nil
}

func (d *MemoryDevice) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.record(PointerEvent{Kind: "press", Key: key})
	return nil
}

func (d *MemoryDevice) Scroll(ctx context.Context, amount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x, y := d.Pointer()
	d.record(PointerEvent{Kind: "scroll", X: x, Y: y, Amount: amount})
	return nil
}

func (d *MemoryDevice) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shot, nil
}

func (d *MemoryDevice) Bounds() (float64, float64) { return d.width, d.height }

var _ Device = (*MemoryDevice)(nil)
