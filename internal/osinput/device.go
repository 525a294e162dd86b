// internal/osinput/device.go

// Package osinput defines the OS-level input collaborator the agent falls
// back to when no browser driver session is available. Concrete device
// backends (X11, uinput, macOS CGEvent...) are supplied by the host
// integrator; this package provides the contract, a fail-safe guard and a
// deterministic in-memory device used in tests and dry runs.
package osinput

import (
	"context"
	"errors"
	"sync"
)

// ErrFailSafe is returned once the fail-safe guard has tripped; every
// subsequent input call fails with it until the guard is reset.
var ErrFailSafe = errors.New("osinput: fail-safe abort triggered")

// Device is the minimal OS-level input surface. Implementations must be safe
// for sequential use; the agent never drives a device from more than one
// goroutine.
type Device interface {
	MovePointer(ctx context.Context, x, y float64) error
	Click(ctx context.Context) error
	TypeChar(ctx context.Context, c rune) error
	Press(ctx context.Context, key string) error
	Scroll(ctx context.Context, amount int) error
	Screenshot(ctx context.Context) ([]byte, error)
	// Bounds reports the usable screen size in pixels.
	Bounds() (width, height float64)
}

// FailSafeGuard wraps a Device and aborts all input once the pointer is
// driven into a screen corner, mirroring the conventional panic-abort gesture
// of desktop automation tools.
type FailSafeGuard struct {
	device Device
	margin float64

	mu      sync.Mutex
	tripped bool
}

// NewFailSafeGuard wraps device. margin is the corner size in pixels; values
// below 1 default to 2.
func NewFailSafeGuard(device Device, margin float64) *FailSafeGuard {
	if margin < 1 {
		margin = 2
	}
	return &FailSafeGuard{device: device, margin: margin}
}

// Tripped reports whether the guard has aborted.
func (g *FailSafeGuard) Tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped
}

// Reset re-arms a tripped guard.
func (g *FailSafeGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tripped = false
}

func (g *FailSafeGuard) check() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tripped {
		return ErrFailSafe
	}
	return nil
}

// MovePointer forwards the move unless it lands in a corner, which trips the
// guard instead.
func (g *FailSafeGuard) MovePointer(ctx context.Context, x, y float64) error {
	if err := g.check(); err != nil {
		return err
	}
	w, h := g.device.Bounds()
	inCornerX := x <= g.margin || x >= w-g.margin
	inCornerY := y <= g.margin || y >= h-g.margin
	if inCornerX && inCornerY {
		g.mu.Lock()
		g.tripped = true
		g.mu.Unlock()
		return ErrFailSafe
	}
	return g.device.MovePointer(ctx, x, y)
}

func (g *FailSafeGuard) Click(ctx context.Context) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.device.Click(ctx)
}

func (g *FailSafeGuard) TypeChar(ctx context.Context, c rune) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.device.TypeChar(ctx, c)
}

func (g *FailSafeGuard) Press(ctx context.Context, key string) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.device.Press(ctx, key)
}

func (g *FailSafeGuard) Scroll(ctx context.Context, amount int) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.device.Scroll(ctx, amount)
}

func (g *FailSafeGuard) Screenshot(ctx context.Context) ([]byte, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	return g.device.Screenshot(ctx)
}

func (g *FailSafeGuard) Bounds() (float64, float64) { return g.device.Bounds() }

var _ Device = (*FailSafeGuard)(nil)
