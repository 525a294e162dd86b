// internal/browser/session/dispatcher.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// cdpDispatcher bridges the browser-agnostic humanoid event model onto the
// concrete CDP Input domain.
type cdpDispatcher struct {
	session *Session
}

// Dispatcher returns the session's humanoid event sink.
func (s *Session) Dispatcher() *cdpDispatcher {
	return &cdpDispatcher{session: s}
}

// Sleep pauses on the browser context, respecting caller cancellation.
func (d *cdpDispatcher) Sleep(ctx context.Context, dur time.Duration) error {
	return d.session.run(ctx, chromedp.Sleep(dur))
}

// DispatchMouseEvent dispatches a single mouse event via CDP.
func (d *cdpDispatcher) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))
	if data.Type == schemas.MouseWheel {
		p = p.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
	}

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.session.run(opCtx, p); err != nil {
		return fmt.Errorf("dispatching mouse event: %w", err)
	}
	return nil
}

// SendKeys dispatches keyboard events for the given text via CDP.
func (d *cdpDispatcher) SendKeys(ctx context.Context, keys string) error {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.session.run(opCtx, chromedp.KeyEvent(keys)); err != nil {
		return fmt.Errorf("sending keys: %w", err)
	}
	return nil
}
