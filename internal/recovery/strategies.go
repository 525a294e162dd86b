// internal/recovery/strategies.go
package recovery

import (
	"context"
	"strings"
	"time"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// orDefault guards against zero-valued config waits.
func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// refind refreshes perception and re-resolves the step's target, updating
// only the transient cache.
func refind(ctx context.Context, rc *Context) Outcome {
	if rc.Perceive == nil || rc.Finder == nil {
		return Outcome{Detail: "no perception available"}
	}
	snap, err := rc.Perceive(ctx)
	if err != nil {
		return Outcome{Detail: "perception refresh failed: " + err.Error()}
	}
	rc.Snapshot = snap
	hints := rc.Step.Hints
	if len(hints) == 0 && rc.Step.Target != "" {
		hints = []string{rc.Step.Target}
	}
	el, ok := rc.Finder.FindElement(snap, hints)
	if !ok {
		return Outcome{Detail: "target still not found"}
	}
	rc.Step.Resolved = el
	return Outcome{Recovered: true, Detail: "re-resolved " + el.Selector}
}

type scrollAndRetry struct{ amount int }

func (s *scrollAndRetry) Name() string { return "scroll_and_retry" }

func (s *scrollAndRetry) Attempt(ctx context.Context, rc *Context) Outcome {
	if rc.Driver == nil {
		return Outcome{Detail: "no driver to scroll with"}
	}
	amount := s.amount
	if amount == 0 {
		amount = 400
	}
	if err := rc.Driver.Scroll(ctx, amount); err != nil {
		return Outcome{Detail: "scroll failed: " + err.Error()}
	}
	return refind(ctx, rc)
}

type waitAndRetry struct{ wait time.Duration }

func (s *waitAndRetry) Name() string { return "wait_and_retry" }

func (s *waitAndRetry) Attempt(ctx context.Context, rc *Context) Outcome {
	if err := sleepCtx(ctx, orDefault(s.wait, 2*time.Second)); err != nil {
		return Outcome{Detail: "canceled"}
	}
	if rc.Step.Action == schemas.ActionFindElement || rc.Step.Resolved == nil {
		return refind(ctx, rc)
	}
	if rc.Retry == nil {
		return refind(ctx, rc)
	}
	if err := rc.Retry(ctx); err != nil {
		return Outcome{Detail: "retry failed: " + err.Error()}
	}
	return Outcome{Recovered: true, Detail: "succeeded after wait"}
}

// searchAlternative relaxes the hint set to the individual words of the
// step's target description.
type searchAlternative struct{}

func (s *searchAlternative) Name() string { return "search_alternative" }

func (s *searchAlternative) Attempt(ctx context.Context, rc *Context) Outcome {
	if rc.Snapshot == nil || rc.Finder == nil {
		return Outcome{Detail: "no snapshot to search"}
	}
	words := strings.Fields(strings.ToLower(rc.Step.Target))
	var hints []string
	for _, w := range words {
		if len(w) >= 3 && w != "the" && w != "field" && w != "button" {
			hints = append(hints, w)
		}
	}
	if len(hints) == 0 {
		return Outcome{Detail: "no alternative hints to try"}
	}
	el, ok := rc.Finder.FindElement(rc.Snapshot, hints)
	if !ok {
		return Outcome{Detail: "no alternative match"}
	}
	rc.Step.Resolved = el
	return Outcome{Recovered: true, Detail: "alternative match " + el.Selector}
}

// adjustCoordinates nudges a stale resolved bbox toward the viewport and
// retries. Without a prior resolution there is nothing to adjust.
type adjustCoordinates struct{}

func (s *adjustCoordinates) Name() string { return "adjust_coordinates" }

func (s *adjustCoordinates) Attempt(ctx context.Context, rc *Context) Outcome {
	res := rc.Step.Resolved
	if res == nil || res.BBox.Empty() {
		return Outcome{Detail: "no resolved coordinates to adjust"}
	}
	adjusted := *res
	adjusted.BBox.X += adjusted.BBox.W * 0.1
	adjusted.BBox.Y += adjusted.BBox.H * 0.1
	adjusted.Source = "adjusted"
	rc.Step.Resolved = &adjusted
	if rc.Retry == nil {
		return Outcome{Recovered: true, Detail: "coordinates adjusted"}
	}
	if err := rc.Retry(ctx); err != nil {
		rc.Step.Resolved = res
		return Outcome{Detail: "retry with adjusted coordinates failed: " + err.Error()}
	}
	return Outcome{Recovered: true, Detail: "succeeded with adjusted coordinates"}
}

// increaseWait doubles the base pause, bounded by the configured maximum,
// before retrying.
type increaseWait struct {
	base time.Duration
	max  time.Duration
}

func (s *increaseWait) Name() string { return "increase_wait" }

func (s *increaseWait) Attempt(ctx context.Context, rc *Context) Outcome {
	wait := orDefault(s.base, 2*time.Second) * 2
	if max := orDefault(s.max, 30*time.Second); wait > max {
		wait = max
	}
	if err := sleepCtx(ctx, wait); err != nil {
		return Outcome{Detail: "canceled"}
	}
	if rc.Retry == nil {
		return Outcome{Detail: "nothing to retry"}
	}
	if err := rc.Retry(ctx); err != nil {
		return Outcome{Detail: "still failing after longer wait: " + err.Error()}
	}
	return Outcome{Recovered: true, Detail: "succeeded after extended wait"}
}

type refreshPage struct{}

func (s *refreshPage) Name() string { return "refresh_page" }

func (s *refreshPage) Attempt(ctx context.Context, rc *Context) Outcome {
	if rc.Driver == nil {
		return Outcome{Detail: "no driver to refresh with"}
	}
	if err := rc.Driver.Reload(ctx); err != nil {
		return Outcome{Detail: "reload failed: " + err.Error()}
	}
	// The old snapshot and any resolution are stale after a reload.
	rc.Step.Resolved = nil
	if out := refind(ctx, rc); out.Recovered || rc.Step.Action == schemas.ActionFindElement {
		return out
	}
	if rc.Retry == nil {
		return Outcome{Detail: "nothing to retry after refresh"}
	}
	if err := rc.Retry(ctx); err != nil {
		return Outcome{Detail: "retry after refresh failed: " + err.Error()}
	}
	return Outcome{Recovered: true, Detail: "succeeded after refresh"}
}

type retryAction struct{}

func (s *retryAction) Name() string { return "retry_action" }

func (s *retryAction) Attempt(ctx context.Context, rc *Context) Outcome {
	if rc.Retry == nil {
		return Outcome{Detail: "nothing to retry"}
	}
	if err := rc.Retry(ctx); err != nil {
		return Outcome{Detail: "retry failed: " + err.Error()}
	}
	return Outcome{Recovered: true, Detail: "succeeded on plain retry"}
}
