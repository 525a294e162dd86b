// internal/planner/planner.go

// Package planner turns a natural-language goal into an ordered Plan of
// Steps. Intent matching is an explicit, ordered rule table; first match
// wins. Goals matching no template are decomposed keyword by keyword, and a
// goal matching nothing at all still yields a minimal verify-only plan.
package planner

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/memory"
)

// Planner builds Plans from goals plus recalled memory context.
type Planner struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Planner {
	return &Planner{logger: logger.Named("planner")}
}

// intentRule maps goal keywords to a named intent with a step factory.
// Order matters: the first rule whose keywords hit the goal wins.
type intentRule struct {
	intent   string
	keywords []string
	build    func(goal, domain string) []schemas.Step
}

var intentRules = []intentRule{
	{
		intent:   "login",
		keywords: []string{"login", "log in", "sign in", "signin"},
		build:    buildLoginSteps,
	},
	{
		intent:   "form_fill",
		keywords: []string{"fill", "form", "register", "sign up", "signup"},
		build:    buildFormFillSteps,
	},
	{
		intent:   "search",
		keywords: []string{"search", "find", "look for", "look up"},
		build:    buildSearchSteps,
	},
	{
		intent:   "download",
		keywords: []string{"download", "save file", "export"},
		build:    buildDownloadSteps,
	},
}

// CreatePlan resolves the goal to a Plan. Learned skills are tried first,
// then the intent template table, then keyword decomposition.
func (p *Planner) CreatePlan(goal, domain string, mem memory.RecallContext, scope schemas.PermissionScope) (*schemas.Plan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("planner: empty goal")
	}
	lower := strings.ToLower(goal)

	plan := &schemas.Plan{
		Goal:            goal,
		Domain:          domain,
		Scope:           scope,
		RecoveryEnabled: true,
	}

	if skill, ok := p.matchSkill(lower, domain, mem.Skills); ok {
		plan.Intent = skill.Template.Intent
		plan.SkillUsed = skill.Name
		plan.Steps = instantiateTemplate(skill.Template, goal, domain)
		plan.Reasoning = append(plan.Reasoning, fmt.Sprintf("Reused learned skill %q (%.0f%% success over %d uses).",
			skill.Name, skill.SuccessRate*100, skill.TimesUsed))
		p.finalize(plan)
		return plan, nil
	}

	if len(mem.SimilarGoals) > 0 {
		plan.Reasoning = append(plan.Reasoning,
			fmt.Sprintf("Found %d similar past goals in memory.", len(mem.SimilarGoals)))
	}

	for _, rule := range intentRules {
		if containsAny(lower, rule.keywords) {
			plan.Intent = rule.intent
			plan.Steps = rule.build(goal, domain)
			plan.Reasoning = append(plan.Reasoning, fmt.Sprintf("Matched intent template %q.", rule.intent))
			p.finalize(plan)
			return plan, nil
		}
	}

	if steps := decompose(goal, lower, domain); len(steps) > 0 {
		plan.Intent = "composite"
		plan.Steps = steps
		plan.Reasoning = append(plan.Reasoning, "Decomposed goal into recognized action groups.")
		p.finalize(plan)
		return plan, nil
	}

	// Nothing recognized. Produce a minimal plan rather than fail: navigate
	// if we know where to go, then verify.
	plan.Intent = "complex"
	if domain != "" {
		plan.Steps = append(plan.Steps, navigateStep(domain))
	}
	plan.Reasoning = append(plan.Reasoning, "Goal matched no known intent; producing a minimal observation plan.")
	p.finalize(plan)
	return plan, nil
}

// finalize appends the closing verify_completion step and estimates duration.
func (p *Planner) finalize(plan *schemas.Plan) {
	plan.Steps = append(plan.Steps, schemas.Step{
		Action: schemas.ActionVerifyCompletion,
		Target: plan.Goal,
		Verify: &schemas.VerificationSpec{
			Indicators: []string{"success", "complete", "done", "thank you", "welcome"},
		},
	})
	plan.EstimatedDuration = time.Duration(len(plan.Steps)) * 5 * time.Second
	p.logger.Debug("Plan created",
		zap.String("intent", plan.Intent),
		zap.Int("steps", len(plan.Steps)))
}

// matchSkill finds a learned skill applicable to this goal and domain. The
// skill's goal fingerprint lives in its name verb; requiring the verb in the
// goal keeps the fast path conservative.
func (p *Planner) matchSkill(lowerGoal, domain string, skills []schemas.Skill) (schemas.Skill, bool) {
	for _, skill := range skills {
		if skill.SuccessRate < 0.8 || len(skill.Template.Steps) == 0 {
			continue
		}
		verb := strings.SplitN(skill.Name, "_", 2)[0]
		if verb == "" || !strings.Contains(lowerGoal, verb) {
			continue
		}
		if domain != "" && skill.Domain != "" && !strings.Contains(domain, skill.Domain) && !strings.Contains(skill.Domain, domain) {
			continue
		}
		return skill, true
	}
	return schemas.Skill{}, false
}

// instantiateTemplate copies template steps, dropping the template's closing
// verification so finalize can add a fresh one for this goal. Transient
// resolution caches never survive into a new plan.
func instantiateTemplate(tpl schemas.PlanTemplate, goal, domain string) []schemas.Step {
	steps := make([]schemas.Step, 0, len(tpl.Steps))
	for _, s := range tpl.Steps {
		if s.Action == schemas.ActionVerifyCompletion {
			continue
		}
		s.Resolved = nil
		steps = append(steps, s)
	}
	return steps
}

// decompose scans the goal for recognized action keywords and appends the
// matching step groups in the order the table lists them.
func decompose(goal, lower, domain string) []schemas.Step {
	var steps []schemas.Step
	if domain != "" {
		steps = append(steps, navigateStep(domain))
	}
	type group struct {
		keywords []string
		build    func(goal, domain string) []schemas.Step
	}
	groups := []group{
		{[]string{"login", "sign in", "log in"}, buildLoginSteps},
		{[]string{"search", "look for"}, buildSearchSteps},
		{[]string{"download", "export"}, buildDownloadSteps},
		{[]string{"submit", "send"}, buildSubmitSteps},
		{[]string{"screenshot", "capture"}, buildScreenshotSteps},
	}
	matched := false
	for _, g := range groups {
		if containsAny(lower, g.keywords) {
			matched = true
			for _, s := range g.build(goal, domain) {
				// Decomposition already navigated once up front.
				if s.Action == schemas.ActionNavigate {
					continue
				}
				steps = append(steps, s)
			}
		}
	}
	if !matched {
		return nil
	}
	return steps
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
