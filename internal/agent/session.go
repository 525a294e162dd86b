// internal/agent/session.go

// Package agent owns the run state machine: Validating, Planning,
// Executing(i), Recovering(i), Done or Aborted, then Learning. One Session
// owns one browser driver handle and one instance of each collaborator for
// the lifetime of a single plan.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/executor"
	"github.com/xkilldash9x/taskpilot/internal/humanoid"
	"github.com/xkilldash9x/taskpilot/internal/memory"
	"github.com/xkilldash9x/taskpilot/internal/perception"
	"github.com/xkilldash9x/taskpilot/internal/permission"
	"github.com/xkilldash9x/taskpilot/internal/planner"
	"github.com/xkilldash9x/taskpilot/internal/recovery"
)

// State labels the orchestrator's position in the run lifecycle.
type State string

const (
	StateValidating State = "validating"
	StatePlanning   State = "planning"
	StateExecuting  State = "executing"
	StateRecovering State = "recovering"
	StateDone       State = "done"
	StateAborted    State = "aborted"
	StateLearning   State = "learning"
)

// successThreshold is the minimum success rate for a run to count as
// successful.
const successThreshold = 0.8

// Driver is the full browser surface a session may use. All of it is
// optional: a nil driver degrades execution to OS-level input.
type Driver interface {
	executor.Driver
	CaptureState(ctx context.Context) (*schemas.PageState, error)
	DOMSnapshot(ctx context.Context) (string, error)
	Reload(ctx context.Context) error
}

// Session is one agent run's worth of wired collaborators.
type Session struct {
	logger  *zap.Logger
	cfg     config.Interface
	gate    *permission.Gate
	plan    *planner.Planner
	percept *perception.Engine
	exec    *executor.Executor
	recover *recovery.Engine
	store   *memory.Store
	driver  Driver
	human   humanoid.Controller
	control *ControlToken
	state   State
}

// Option customizes a Session at construction.
type Option func(*sessionOptions)

type sessionOptions struct {
	driver     Driver
	human      humanoid.Controller
	store      *memory.Store
	confirm    permission.ConfirmationFunc
	extractor  perception.TextExtractor
	screenshot perception.Screenshotter
}

// WithDriver attaches a browser driver. Without one the session runs on
// OS-level input alone.
func WithDriver(d Driver) Option { return func(o *sessionOptions) { o.driver = d } }

// WithHumanoid attaches the synthesized-input controller used for
// coordinate-level interaction.
func WithHumanoid(h humanoid.Controller) Option { return func(o *sessionOptions) { o.human = h } }

// WithMemory attaches the durable store; without it recall and learning are
// skipped.
func WithMemory(s *memory.Store) Option { return func(o *sessionOptions) { o.store = s } }

// WithConfirmation wires the human-in-the-loop approval channel for
// sensitive actions.
func WithConfirmation(f permission.ConfirmationFunc) Option {
	return func(o *sessionOptions) { o.confirm = f }
}

// WithTextExtractor attaches an optional OCR collaborator.
func WithTextExtractor(e perception.TextExtractor) Option {
	return func(o *sessionOptions) { o.extractor = e }
}

// WithScreenshotter attaches the screen-capture fallback perception uses
// when no browser driver is wired.
func WithScreenshotter(s perception.Screenshotter) Option {
	return func(o *sessionOptions) { o.screenshot = s }
}

// NewSession wires one run's collaborators per the configuration.
func NewSession(cfg config.Interface, logger *zap.Logger, opts ...Option) *Session {
	var so sessionOptions
	for _, opt := range opts {
		opt(&so)
	}
	log := logger.Named("agent")

	var pd perception.Driver
	if so.driver != nil {
		pd = so.driver
	}
	percept := perception.NewEngine(cfg.Perception(), logger, pd, so.extractor, so.screenshot)

	control := NewControlToken()
	s := &Session{
		logger:  log,
		cfg:     cfg,
		gate:    permission.NewGate(logger, cfg.Agent().AllowedDomains, so.confirm),
		plan:    planner.New(logger),
		percept: percept,
		recover: recovery.NewEngine(cfg.Recovery(), logger),
		store:   so.store,
		driver:  so.driver,
		human:   so.human,
		control: control,
		state:   StateValidating,
	}

	var ed executor.Driver
	if so.driver != nil {
		ed = so.driver
	}
	s.exec = executor.New(cfg.Agent(), logger, ed, so.human, percept, control)
	return s
}

// Control exposes the cooperative pause/stop token for the host integrator.
func (s *Session) Control() *ControlToken { return s.control }

// State reports the orchestrator's current lifecycle state.
func (s *Session) State() State { return s.state }

func (s *Session) transition(to State) {
	s.logger.Debug("State transition", zap.String("from", string(s.state)), zap.String("to", string(to)))
	s.state = to
}

// Execute runs one goal end to end. It never returns an error: every
// failure mode is folded into the structured report.
func (s *Session) Execute(ctx context.Context, goal, domain string, scope schemas.PermissionScope) *schemas.ExecutionReport {
	if scope == "" {
		scope = s.cfg.Agent().DefaultScope
	}
	report := &schemas.ExecutionReport{
		ExecutionID: uuid.NewString(),
		StartedAt:   time.Now(),
	}
	log := s.logger.With(zap.String("execution_id", report.ExecutionID), zap.String("goal", goal))
	log.Info("Starting run", zap.String("domain", domain), zap.String("scope", string(scope)))

	defer func() {
		report.FinishedAt = time.Now()
		log.Info("Run finished",
			zap.Bool("success", report.Success),
			zap.Float64("success_rate", report.SuccessRate),
			zap.Int("steps_executed", report.StepsExecuted),
			zap.Int("steps_failed", report.StepsFailed))
	}()

	// Permission validation happens exactly once, before any step runs.
	s.transition(StateValidating)
	if decision := s.gate.Validate(goal, domain, scope); !decision.Allowed {
		s.abort(report, newRunError(ErrCodePermissionDenied, "%s", decision.Reason).Error())
		return report
	}

	s.transition(StatePlanning)
	var recall memory.RecallContext
	if s.store != nil {
		recall = s.store.Recall(goal, domain)
	}
	plan, err := s.plan.CreatePlan(goal, domain, recall, scope)
	if err != nil {
		s.abort(report, newRunError(ErrCodePlanGeneration, "planning failed: %v", err).Error())
		return report
	}
	report.Reasoning = plan.Reasoning

	s.runPlan(ctx, plan, report, log)

	total := len(plan.Steps)
	if total < 1 {
		total = 1
	}
	report.SuccessRate = float64(report.StepsExecuted) / float64(total)
	report.Success = !report.Aborted && report.SuccessRate >= successThreshold

	if report.Success {
		s.transition(StateLearning)
		s.learn(goal, domain, plan, report, log)
	}
	return report
}

// runPlan walks the steps strictly in order. A single step failure never
// aborts the run; only permission denial, a stop, or an exhausted step
// budget does.
func (s *Session) runPlan(ctx context.Context, plan *schemas.Plan, report *schemas.ExecutionReport, log *zap.Logger) {
	maxSteps := s.cfg.Agent().MaxSteps
	if maxSteps <= 0 {
		maxSteps = 50
	}

	var snap *schemas.PerceptionSnapshot
	var pending *schemas.ResolvedElement
	for i := range plan.Steps {
		step := &plan.Steps[i]

		// A find_element resolution serves the action step that follows it.
		if pending != nil && step.Resolved == nil &&
			(step.Action == schemas.ActionClick || step.Action == schemas.ActionTypeText) {
			step.Resolved = pending
			pending = nil
		}

		if i >= maxSteps {
			s.abort(report, fmt.Sprintf("step budget of %d exhausted", maxSteps))
			return
		}
		if err := s.control.Checkpoint(ctx); err != nil {
			if errors.Is(err, ErrStopped) {
				s.abort(report, string(ErrCodeStopped))
			} else {
				s.abort(report, "canceled: "+err.Error())
			}
			return
		}

		s.transition(StateExecuting)
		if blocked := s.checkScope(plan.Scope, step, report, log); blocked {
			s.logStep(report, i, step, schemas.StepResult{Error: "action exceeds plan scope"}, false)
			report.StepsFailed++
			continue
		}
		if denied := s.checkConfirmation(ctx, step, report, log); denied {
			s.logStep(report, i, step, schemas.StepResult{Error: "confirmation denied"}, false)
			report.StepsFailed++
			continue
		}

		result := s.exec.ExecuteStep(ctx, step, snap)
		recovered := false

		if !result.Success && plan.RecoveryEnabled && s.cfg.Recovery().Enabled {
			s.transition(StateRecovering)
			rr := s.attemptRecovery(ctx, step, result.Error, &snap)
			report.RecoveryAttempts += len(rr.StrategiesAttempted)
			if rr.Recovered {
				recovered = true
				result = schemas.StepResult{Success: true, Detail: "recovered via " + rr.Method}
			}
		}

		s.logStep(report, i, step, result, recovered)
		if result.Success {
			report.StepsExecuted++
			if step.Action == schemas.ActionFindElement {
				pending = step.Resolved
			}
			snap = s.refreshAfter(ctx, step, snap)
		} else {
			report.StepsFailed++
			log.Warn("Step failed",
				zap.Int("step", i),
				zap.String("action", string(step.Action)),
				zap.String("error", result.Error))
		}
	}
	s.transition(StateDone)
}

// checkScope applies the scope-exceedance policy: warn and proceed by
// default, block the step under strict enforcement.
func (s *Session) checkScope(scope schemas.PermissionScope, step *schemas.Step, report *schemas.ExecutionReport, log *zap.Logger) bool {
	if s.gate.ActionAllowed(scope, step.Action) {
		return false
	}
	if s.cfg.Agent().EnforceScope {
		log.Warn("Blocking step: action exceeds plan scope",
			zap.String("action", string(step.Action)),
			zap.String("scope", string(scope)))
		return true
	}
	log.Warn("Step action exceeds plan scope; proceeding",
		zap.String("action", string(step.Action)),
		zap.String("scope", string(scope)))
	return false
}

func (s *Session) checkConfirmation(ctx context.Context, step *schemas.Step, report *schemas.ExecutionReport, log *zap.Logger) bool {
	if !step.RequiresConfirmation || !s.cfg.Agent().ConfirmationRequired {
		return false
	}
	action := confirmationAction(step)
	ok, err := s.gate.RequestConfirmation(ctx, action, map[string]string{
		"target": step.Target,
		"action": string(step.Action),
	})
	if err != nil {
		log.Warn("Confirmation request failed", zap.Error(err))
		return true
	}
	return !ok
}

func (s *Session) attemptRecovery(ctx context.Context, step *schemas.Step, failure string, snap **schemas.PerceptionSnapshot) schemas.RecoveryResult {
	var rd recovery.Driver
	if s.driver != nil {
		rd = s.driver
	}
	rc := &recovery.Context{
		Step:     step,
		Snapshot: *snap,
		Driver:   rd,
		Finder:   s.percept,
		Perceive: s.percept.Analyze,
		Retry: func(ctx context.Context) error {
			res := s.exec.ExecuteStep(ctx, step, *snap)
			if !res.Success {
				return errors.New(res.Error)
			}
			return nil
		},
	}
	rr := s.recover.AttemptRecovery(ctx, failure, rc)
	if rc.Snapshot != nil {
		*snap = rc.Snapshot
	}
	return rr
}

// refreshAfter invalidates or refreshes the cached snapshot when a step is
// expected to have changed the page.
func (s *Session) refreshAfter(ctx context.Context, step *schemas.Step, snap *schemas.PerceptionSnapshot) *schemas.PerceptionSnapshot {
	changed := step.Action == schemas.ActionNavigate ||
		(step.Verify != nil && step.Verify.ExpectNavigation) ||
		step.Action == schemas.ActionClick ||
		step.Action == schemas.ActionScroll
	if !changed {
		return snap
	}
	fresh, err := s.percept.Analyze(ctx)
	if err != nil {
		s.logger.Debug("Snapshot refresh failed", zap.Error(err))
		return nil
	}
	return fresh
}

func (s *Session) logStep(report *schemas.ExecutionReport, index int, step *schemas.Step, result schemas.StepResult, recovered bool) {
	report.ExecutionLog = append(report.ExecutionLog, schemas.ExecutionLogEntry{
		StepIndex: index,
		Action:    step.Action,
		Target:    step.Target,
		Result:    result,
		Recovered: recovered,
		Timestamp: time.Now(),
	})
}

func (s *Session) abort(report *schemas.ExecutionReport, reason string) {
	s.transition(StateAborted)
	report.Aborted = true
	report.AbortReason = reason
	s.logger.Warn("Run aborted", zap.String("reason", reason))
}

// learn persists the successful run. Memory trouble is logged and swallowed.
func (s *Session) learn(goal, domain string, plan *schemas.Plan, report *schemas.ExecutionReport, log *zap.Logger) {
	if s.store == nil {
		return
	}
	if err := s.store.StoreSuccess(goal, domain, plan, report.SuccessRate); err != nil {
		log.Warn("Memory persistence failed",
			zap.String("code", string(ErrCodeMemoryPersistence)),
			zap.Error(err))
	}
	if plan.SkillUsed != "" {
		if err := s.store.RecordSkillUse(plan.SkillUsed, report.SuccessRate); err != nil {
			log.Warn("Skill bookkeeping failed", zap.Error(err))
		}
	}
}

// confirmationAction maps a step onto the gate's sensitive action
// vocabulary.
func confirmationAction(step *schemas.Step) string {
	text := strings.ToLower(step.Target + " " + strings.Join(step.Hints, " "))
	switch {
	case strings.Contains(text, "pay") || strings.Contains(text, "purchase") || strings.Contains(text, "checkout"):
		return "submit_payment"
	case strings.Contains(text, "delete") || strings.Contains(text, "remove"):
		return "delete_data"
	case strings.Contains(text, "download") || strings.Contains(text, "export"):
		return "download_file"
	case strings.Contains(text, "setting") || strings.Contains(text, "preference"):
		return "change_settings"
	default:
		return "submit_form"
	}
}
