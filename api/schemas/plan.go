// api/schemas/plan.go
package schemas

import "time"

// ActionKind enumerates the atomic actions a plan step can perform. The
// executor's dispatch switches over this vocabulary exhaustively.
type ActionKind string

const (
	ActionNavigate         ActionKind = "navigate"
	ActionFindElement      ActionKind = "find_element"
	ActionClick            ActionKind = "click"
	ActionTypeText         ActionKind = "type_text"
	ActionScroll           ActionKind = "scroll"
	ActionWait             ActionKind = "wait"
	ActionScreenshot       ActionKind = "screenshot"
	ActionVerifyCompletion ActionKind = "verify_completion"
)

// PermissionScope is a coarse capability bucket gating which action kinds a
// run may perform.
type PermissionScope string

const (
	ScopeRead    PermissionScope = "read"
	ScopeWrite   PermissionScope = "write"
	ScopeSubmit  PermissionScope = "submit"
	ScopePayment PermissionScope = "payment"
)

// VerificationSpec describes how a step's outcome is checked after execution.
// An empty spec means the step result alone decides success.
type VerificationSpec struct {
	// Indicators are substrings searched for in perceived page text.
	Indicators []string `json:"indicators,omitempty"`
	// ExpectNavigation marks steps whose success implies a URL change.
	ExpectNavigation bool `json:"expect_navigation,omitempty"`
}

// ResolvedElement caches the outcome of element resolution during execution.
// It is transient session state: recovery strategies may rewrite it, but it is
// never part of the immutable plan contract and is excluded from persistence.
type ResolvedElement struct {
	Selector string  `json:"-"`
	Source   string  `json:"-"` // "semantic", "structural" or "text"
	Text     string  `json:"-"`
	BBox     BBox    `json:"-"`
	Score    float64 `json:"-"`
}

// Step is one atomic action within a Plan. The slice of steps a plan carries
// never reorders or resizes once execution begins.
type Step struct {
	Action   ActionKind `json:"action"`
	Target   string     `json:"target,omitempty"`   // human description of the target
	Value    string     `json:"value,omitempty"`    // text to type, URL to open, scroll amount
	Selector string     `json:"selector,omitempty"` // preferred CSS selector, if known
	// Hints are candidate substrings used by find_element resolution.
	Hints                []string          `json:"hints,omitempty"`
	Verify               *VerificationSpec `json:"verify,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation,omitempty"`
	// Submit presses Enter after a type_text step, the way a person submits
	// a search box without hunting for its button.
	Submit bool `json:"submit,omitempty"`

	// Resolved is populated only while the step executes.
	Resolved *ResolvedElement `json:"-"`
}

// Plan is the ordered step sequence produced for one goal. Plans are value
// objects: once a run starts the step list is immutable.
type Plan struct {
	Goal   string          `json:"goal"`
	Domain string          `json:"domain,omitempty"`
	Scope  PermissionScope `json:"permission_scope"`
	Intent string          `json:"intent"`
	Steps  []Step          `json:"steps"`
	// Reasoning is the trail of planning decisions, surfaced in the report.
	Reasoning []string `json:"reasoning"`
	// SkillUsed names the learned skill this plan was instantiated from.
	SkillUsed         string        `json:"skill_used,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	RecoveryEnabled   bool          `json:"recovery_enabled"`
}

// PlanTemplate is the persistable shape of a plan, as stored inside a Skill.
// It omits the goal binding so a template can be re-instantiated for new goals.
type PlanTemplate struct {
	Intent string `json:"intent"`
	Steps  []Step `json:"steps"`
}

// Skill is a reusable plan template learned from repeated successful
// executions of similar goals. Skills are durable across process restarts.
type Skill struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Domain      string       `json:"domain"`
	Template    PlanTemplate `json:"plan_template"`
	SuccessRate float64      `json:"success_rate"`
	TimesUsed   int          `json:"times_used"`
	CreatedAt   time.Time    `json:"created_at"`
}
