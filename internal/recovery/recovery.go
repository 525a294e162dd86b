// internal/recovery/recovery.go

// Package recovery classifies step failures and runs ordered strategy
// chains against them. Each failure class maps to a fixed strategy list;
// strategies run in order and the first success stops the chain. Strategies
// may touch only a Step's transient resolution cache, never the Plan.
package recovery

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

// FailureClass labels a step failure for strategy selection.
type FailureClass string

const (
	FailureElementNotFound FailureClass = "element_not_found"
	FailureClickFailed     FailureClass = "click_failed"
	FailureTimeout         FailureClass = "timeout"
	FailureNetwork         FailureClass = "network_error"
	FailureUnknown         FailureClass = "unknown"
)

// classifierRules map error substrings to a class. Ordered: first match wins.
var classifierRules = []struct {
	substrings []string
	class      FailureClass
}{
	{[]string{"element not found", "no element", "not found", "no such element", "could not resolve"}, FailureElementNotFound},
	{[]string{"click failed", "not clickable", "not visible", "obscured", "intercepted"}, FailureClickFailed},
	{[]string{"timeout", "timed out", "deadline exceeded"}, FailureTimeout},
	{[]string{"network", "connection", "dns", "refused", "reset by peer", "unreachable"}, FailureNetwork},
}

// Classify maps an error message to its failure class by substring search.
func Classify(failure string) FailureClass {
	lower := strings.ToLower(failure)
	for _, rule := range classifierRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lower, sub) {
				return rule.class
			}
		}
	}
	return FailureUnknown
}

// Outcome is a single strategy's verdict.
type Outcome struct {
	Recovered bool
	Detail    string
}

// Strategy is one named remediation attempt. Implementations must confine
// writes to rc.Step.Resolved.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, rc *Context) Outcome
}

// Driver is the slice of browser capability the strategies need. Nil when
// the run degraded to OS-level input.
type Driver interface {
	Scroll(ctx context.Context, amount int) error
	Reload(ctx context.Context) error
}

// Finder resolves a step's target against a fresh snapshot.
type Finder interface {
	FindElement(snap *schemas.PerceptionSnapshot, hints []string) (*schemas.ResolvedElement, bool)
}

// Context carries everything a strategy chain may use for one failure.
type Context struct {
	Step     *schemas.Step
	Snapshot *schemas.PerceptionSnapshot
	Driver   Driver
	Finder   Finder

	// Perceive refreshes the snapshot after the environment changed.
	Perceive func(ctx context.Context) (*schemas.PerceptionSnapshot, error)
	// Retry re-executes the failing step; nil error means it succeeded.
	Retry func(ctx context.Context) error
}

// Engine owns the class-to-chain table.
type Engine struct {
	logger *zap.Logger
	cfg    config.RecoveryConfig
	chains map[FailureClass][]Strategy
}

func NewEngine(cfg config.RecoveryConfig, logger *zap.Logger) *Engine {
	e := &Engine{logger: logger.Named("recovery"), cfg: cfg}
	scroll := &scrollAndRetry{amount: cfg.ScrollAmount}
	wait := &waitAndRetry{wait: cfg.BaseWait}
	alt := &searchAlternative{}
	adjust := &adjustCoordinates{}
	increase := &increaseWait{base: cfg.BaseWait, max: cfg.MaxWait}
	refresh := &refreshPage{}
	retry := &retryAction{}

	e.chains = map[FailureClass][]Strategy{
		FailureElementNotFound: {scroll, wait, alt, adjust},
		FailureClickFailed:     {wait, adjust, retry},
		FailureTimeout:         {increase, refresh, retry},
		FailureNetwork:         {wait, refresh},
		FailureUnknown:         {wait},
	}
	return e
}

// AttemptRecovery runs the chain for the failure's class. The returned
// result lists every strategy tried, in order.
func (e *Engine) AttemptRecovery(ctx context.Context, failure string, rc *Context) schemas.RecoveryResult {
	class := Classify(failure)
	result := schemas.RecoveryResult{}

	log := e.logger.With(
		zap.String("class", string(class)),
		zap.String("action", string(rc.Step.Action)))
	log.Info("Attempting recovery", zap.String("failure", failure))

	for _, strategy := range e.chains[class] {
		if err := ctx.Err(); err != nil {
			log.Debug("Recovery canceled", zap.Error(err))
			return result
		}
		result.StrategiesAttempted = append(result.StrategiesAttempted, strategy.Name())
		outcome := strategy.Attempt(ctx, rc)
		log.Debug("Strategy finished",
			zap.String("strategy", strategy.Name()),
			zap.Bool("recovered", outcome.Recovered),
			zap.String("detail", outcome.Detail))
		if outcome.Recovered {
			result.Recovered = true
			result.Method = strategy.Name()
			return result
		}
	}
	log.Warn("Recovery exhausted", zap.Strings("attempted", result.StrategiesAttempted))
	return result
}

// sleepCtx is a bounded, cancelable wait.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
