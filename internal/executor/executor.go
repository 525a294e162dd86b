// internal/executor/executor.go

// Package executor carries out individual plan steps against the browser
// session, degrading to OS-level input when no driver is available. Every
// dispatch path catches its own failures and reports a uniform StepResult;
// nothing escapes to the caller, panics included.
package executor

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/humanoid"
)

// Driver is the structured browser surface the executor prefers. Nil means
// the run degraded to OS-level input.
type Driver interface {
	Navigate(ctx context.Context, targetURL string) error
	CaptureState(ctx context.Context) (*schemas.PageState, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	Type(ctx context.Context, selector, text string, delay func() time.Duration) error
	PressKey(ctx context.Context, key string) error
	Scroll(ctx context.Context, amount int) error
	ElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error)
}

// Control is the cooperative pause/stop token, polled before every dispatch
// and inside multi-iteration loops. Checkpoint blocks while paused and
// returns an error once stopped.
type Control interface {
	Checkpoint(ctx context.Context) error
}

// Perceiver resolves elements and refreshes snapshots for verification.
type Perceiver interface {
	Analyze(ctx context.Context) (*schemas.PerceptionSnapshot, error)
	FindElement(snap *schemas.PerceptionSnapshot, hints []string) (*schemas.ResolvedElement, bool)
}

// errorIndicators is the fixed vocabulary scanned during verification.
var errorIndicators = []string{"error", "failed", "invalid", "denied", "incorrect", "try again", "not found"}

// Executor dispatches steps by action kind.
type Executor struct {
	logger  *zap.Logger
	cfg     config.AgentConfig
	driver  Driver
	human   humanoid.Controller
	percept Perceiver
	control Control
	limiter *rate.Limiter
	rng     *rand.Rand
}

// New wires an executor. driver and human may each be nil; the executor
// degrades to whichever path remains.
func New(cfg config.AgentConfig, logger *zap.Logger, driver Driver, human humanoid.Controller, percept Perceiver, control Control) *Executor {
	aps := cfg.ActionsPerSecond
	if aps <= 0 {
		aps = 2.0
	}
	return &Executor{
		logger:  logger.Named("executor"),
		cfg:     cfg,
		driver:  driver,
		human:   human,
		percept: percept,
		control: control,
		limiter: rate.NewLimiter(rate.Limit(aps), 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ExecuteStep runs one step to completion and reports the outcome. The
// snapshot is the orchestrator's latest perception; steps that change the
// page invalidate it, which the orchestrator handles by re-analyzing.
func (e *Executor) ExecuteStep(ctx context.Context, step *schemas.Step, snap *schemas.PerceptionSnapshot) (result schemas.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Step dispatch panicked",
				zap.String("action", string(step.Action)),
				zap.Any("panic", r))
			result = schemas.StepResult{Error: fmt.Sprintf("internal failure during %s: %v", step.Action, r)}
		}
	}()

	if err := e.checkpoint(ctx); err != nil {
		return schemas.StepResult{Error: err.Error()}
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return schemas.StepResult{Error: "canceled while pacing: " + err.Error()}
	}

	var deadline context.CancelFunc
	if e.cfg.StepTimeout > 0 {
		ctx, deadline = context.WithTimeout(ctx, e.cfg.StepTimeout)
		defer deadline()
	}

	e.logger.Debug("Executing step",
		zap.String("action", string(step.Action)),
		zap.String("target", step.Target))

	var err error
	var detail string
	switch step.Action {
	case schemas.ActionNavigate:
		detail, err = e.doNavigate(ctx, step)
	case schemas.ActionFindElement:
		detail, err = e.doFindElement(ctx, step, snap)
	case schemas.ActionClick:
		detail, err = e.doClick(ctx, step, snap)
	case schemas.ActionTypeText:
		detail, err = e.doTypeText(ctx, step)
	case schemas.ActionScroll:
		detail, err = e.doScroll(ctx, step)
	case schemas.ActionWait:
		detail, err = e.doWait(ctx, step)
	case schemas.ActionScreenshot:
		detail, err = e.doScreenshot(ctx)
	case schemas.ActionVerifyCompletion:
		detail, err = e.doVerify(ctx, step, snap)
	default:
		err = fmt.Errorf("unknown action kind %q", step.Action)
	}
	if err != nil {
		return schemas.StepResult{Error: err.Error(), Detail: detail}
	}
	return schemas.StepResult{Success: true, Detail: detail}
}

func (e *Executor) checkpoint(ctx context.Context) error {
	if e.control == nil {
		return ctx.Err()
	}
	return e.control.Checkpoint(ctx)
}

// normalizeURL defaults the scheme to https when the target carries none.
func normalizeURL(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return target
	}
	if strings.Contains(target, "://") {
		return target
	}
	if strings.HasPrefix(target, "localhost") || strings.HasPrefix(target, "127.0.0.1") {
		return "http://" + target
	}
	return "https://" + target
}

func (e *Executor) doNavigate(ctx context.Context, step *schemas.Step) (string, error) {
	if e.driver == nil {
		return "", fmt.Errorf("navigate requires a browser driver")
	}
	url := normalizeURL(step.Target)
	if url == "" {
		return "", fmt.Errorf("navigate step carries no target URL")
	}
	if err := e.driver.Navigate(ctx, url); err != nil {
		return "", fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return "navigated to " + url, nil
}

func (e *Executor) doFindElement(ctx context.Context, step *schemas.Step, snap *schemas.PerceptionSnapshot) (string, error) {
	if e.percept == nil {
		return "", fmt.Errorf("element not found: no perception engine")
	}
	if snap == nil {
		fresh, err := e.percept.Analyze(ctx)
		if err != nil {
			return "", fmt.Errorf("element not found: perception failed: %w", err)
		}
		snap = fresh
	}
	hints := step.Hints
	if len(hints) == 0 && step.Target != "" {
		hints = []string{step.Target}
	}
	el, ok := e.percept.FindElement(snap, hints)
	if !ok {
		return "", fmt.Errorf("element not found for %q", step.Target)
	}
	step.Resolved = el
	return fmt.Sprintf("resolved %q via %s", step.Target, el.Source), nil
}

// doClick prefers the structured selector path; without one it drives the
// pointer to the resolved coordinates with synthesized motion.
func (e *Executor) doClick(ctx context.Context, step *schemas.Step, snap *schemas.PerceptionSnapshot) (string, error) {
	if step.Resolved == nil {
		if _, err := e.doFindElement(ctx, step, snap); err != nil {
			return "", err
		}
	}
	res := step.Resolved

	if e.driver != nil && res.Selector != "" {
		if e.human != nil {
			_ = e.human.CognitivePause(ctx, 250, 80)
		}
		if err := e.driver.Click(ctx, res.Selector); err == nil {
			return "clicked " + res.Selector, nil
		} else if res.BBox.Empty() {
			return "", fmt.Errorf("click failed on %s: %w", res.Selector, err)
		}
		// Selector click failed but we hold coordinates; fall through.
	}

	if e.human == nil || res.BBox.Empty() {
		return "", fmt.Errorf("click failed: no usable selector or coordinates for %q", step.Target)
	}
	geo := &schemas.ElementGeometry{BBox: res.BBox}
	// The snapshot bbox may be stale after layout shifts; ask the driver for
	// the element's current geometry before synthesizing pointer motion.
	if e.driver != nil && res.Selector != "" {
		if fresh, err := e.driver.ElementGeometry(ctx, res.Selector); err == nil && fresh != nil && !fresh.BBox.Empty() {
			geo = fresh
		}
	}
	cx, cy := geo.BBox.Center()
	if err := e.human.ClickAt(ctx, geo); err != nil {
		return "", fmt.Errorf("click failed at (%v, %v): %w", cx, cy, err)
	}
	return fmt.Sprintf("clicked at coordinates (%v, %v)", cx, cy), nil
}

// doTypeText injects the value with per-character randomized delays, polling
// the control token between characters.
func (e *Executor) doTypeText(ctx context.Context, step *schemas.Step) (string, error) {
	if step.Value == "" {
		return "nothing to type", nil
	}

	if e.driver != nil && step.Resolved != nil && step.Resolved.Selector != "" {
		delay := func() time.Duration {
			return time.Duration(40+e.rng.Intn(90)) * time.Millisecond
		}
		if err := e.driver.Type(ctx, step.Resolved.Selector, step.Value, delay); err != nil {
			return "", fmt.Errorf("typing into %s failed: %w", step.Resolved.Selector, err)
		}
		if step.Submit {
			if err := e.driver.PressKey(ctx, "\r"); err != nil {
				return "", fmt.Errorf("submitting %s failed: %w", step.Resolved.Selector, err)
			}
			return fmt.Sprintf("typed %d characters into %s and pressed enter", len(step.Value), step.Resolved.Selector), nil
		}
		return fmt.Sprintf("typed %d characters into %s", len(step.Value), step.Resolved.Selector), nil
	}

	if e.human == nil {
		return "", fmt.Errorf("typing failed: no input path for %q", step.Target)
	}
	for _, r := range step.Value {
		if err := e.checkpoint(ctx); err != nil {
			return "", err
		}
		if err := e.human.TypeText(ctx, string(r)); err != nil {
			return "", fmt.Errorf("typing failed: %w", err)
		}
	}
	if step.Submit {
		if err := e.human.TypeText(ctx, "\r"); err != nil {
			return "", fmt.Errorf("submitting failed: %w", err)
		}
	}
	return fmt.Sprintf("typed %d characters", len(step.Value)), nil
}

func (e *Executor) doScroll(ctx context.Context, step *schemas.Step) (string, error) {
	amount := 400
	if step.Value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(step.Value)); err == nil && parsed != 0 {
			amount = parsed
		}
	}
	if e.human != nil {
		if err := e.human.Scroll(ctx, amount); err != nil {
			return "", fmt.Errorf("scroll failed: %w", err)
		}
		return fmt.Sprintf("scrolled %dpx", amount), nil
	}
	if e.driver != nil {
		if err := e.driver.Scroll(ctx, amount); err != nil {
			return "", fmt.Errorf("scroll failed: %w", err)
		}
		return fmt.Sprintf("scrolled %dpx", amount), nil
	}
	return "", fmt.Errorf("scroll failed: no input path")
}

func (e *Executor) doWait(ctx context.Context, step *schemas.Step) (string, error) {
	seconds := 2.0
	if step.Value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(step.Value), 64); err == nil && parsed > 0 {
			seconds = parsed
		}
	}
	// Bounded regardless of what the plan asked for.
	if seconds > 30 {
		seconds = 30
	}
	t := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.C:
		return fmt.Sprintf("waited %.1fs", seconds), nil
	}
}

func (e *Executor) doScreenshot(ctx context.Context) (string, error) {
	if e.driver != nil {
		state, err := e.driver.CaptureState(ctx)
		if err != nil {
			return "", fmt.Errorf("screenshot failed: %w", err)
		}
		return fmt.Sprintf("captured %d bytes of %s", len(state.Screenshot), state.URL), nil
	}
	if e.percept != nil {
		snap, err := e.percept.Analyze(ctx)
		if err != nil {
			return "", fmt.Errorf("screenshot failed: %w", err)
		}
		if len(snap.Screenshot) > 0 {
			return fmt.Sprintf("captured %d bytes from screen", len(snap.Screenshot)), nil
		}
	}
	return "", fmt.Errorf("screenshot requires a capture source")
}

// doVerify re-perceives the page and scans its text for the step's success
// indicators, flagging known error text when none match.
func (e *Executor) doVerify(ctx context.Context, step *schemas.Step, snap *schemas.PerceptionSnapshot) (string, error) {
	if e.percept != nil {
		if fresh, err := e.percept.Analyze(ctx); err == nil {
			snap = fresh
		}
	}
	if snap == nil {
		return "verification skipped: no perception available", nil
	}
	text := strings.ToLower(strings.Join(snap.AllText(), "\n"))

	indicators := []string{"success", "complete", "done", "thank you"}
	if step.Verify != nil && len(step.Verify.Indicators) > 0 {
		indicators = step.Verify.Indicators
	}
	for _, ind := range indicators {
		if strings.Contains(text, strings.ToLower(ind)) {
			return "verified: found indicator " + strconv.Quote(ind), nil
		}
	}
	for _, bad := range errorIndicators {
		if strings.Contains(text, bad) {
			return "", fmt.Errorf("verification found error indicator %q", bad)
		}
	}
	// No definitive signal either way; treat as soft success.
	return "no explicit completion indicator found", nil
}
