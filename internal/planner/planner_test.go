// internal/planner/planner_test.go
package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/memory"
)

func newPlanner(t *testing.T) *Planner {
	t.Helper()
	return New(zaptest.NewLogger(t))
}

func TestCreatePlan_IntentTemplates(t *testing.T) {
	tests := []struct {
		name       string
		goal       string
		wantIntent string
	}{
		{"login phrasing", "log in to my account", "login"},
		{"signin phrasing", "sign in please", "login"},
		{"form fill", "fill out the registration form", "form_fill"},
		{"search", "search for wireless headphones", "search"},
		{"download", "download the monthly report", "download"},
	}

	p := newPlanner(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := p.CreatePlan(tc.goal, "example.com", memory.RecallContext{}, schemas.ScopeWrite)
			require.NoError(t, err)
			assert.Equal(t, tc.wantIntent, plan.Intent)
			require.NotEmpty(t, plan.Steps)
			assert.Equal(t, schemas.ActionNavigate, plan.Steps[0].Action)
			assert.Equal(t, schemas.ActionVerifyCompletion, plan.Steps[len(plan.Steps)-1].Action,
				"every plan ends with verification")
		})
	}
}

func TestCreatePlan_UnmatchedGoalIsComplexNotError(t *testing.T) {
	p := newPlanner(t)

	plan, err := p.CreatePlan("rearrange the widgets", "example.com", memory.RecallContext{}, schemas.ScopeRead)
	require.NoError(t, err)
	assert.Equal(t, "complex", plan.Intent)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, schemas.ActionNavigate, plan.Steps[0].Action)
	assert.Equal(t, schemas.ActionVerifyCompletion, plan.Steps[1].Action)
}

func TestCreatePlan_EmptyGoalFails(t *testing.T) {
	p := newPlanner(t)
	_, err := p.CreatePlan("  ", "", memory.RecallContext{}, schemas.ScopeRead)
	require.Error(t, err)
}

func TestCreatePlan_SearchQueryExtraction(t *testing.T) {
	p := newPlanner(t)
	plan, err := p.CreatePlan(`search for "mechanical keyboards"`, "shop.example", memory.RecallContext{}, schemas.ScopeRead)
	require.NoError(t, err)

	var typed *schemas.Step
	for i := range plan.Steps {
		if plan.Steps[i].Action == schemas.ActionTypeText {
			typed = &plan.Steps[i]
			break
		}
	}
	require.NotNil(t, typed, "search plans type the query")
	assert.Equal(t, "mechanical keyboards", typed.Value)
	assert.True(t, typed.Submit, "the query is submitted with enter")
	require.NotNil(t, typed.Verify)
	assert.True(t, typed.Verify.ExpectNavigation)
}

func TestCreatePlan_SensitiveStepsRequireConfirmation(t *testing.T) {
	p := newPlanner(t)
	plan, err := p.CreatePlan("log in to my account", "example.com", memory.RecallContext{}, schemas.ScopeSubmit)
	require.NoError(t, err)

	confirmed := false
	for _, s := range plan.Steps {
		if s.Action == schemas.ActionClick && s.RequiresConfirmation {
			confirmed = true
		}
	}
	assert.True(t, confirmed, "the login submit click is gated on confirmation")
}

func TestCreatePlan_SkillFastPath(t *testing.T) {
	p := newPlanner(t)
	skill := schemas.Skill{
		Name:        "search_shop",
		Domain:      "shop.example.com",
		SuccessRate: 0.95,
		TimesUsed:   4,
		CreatedAt:   time.Now(),
		Template: schemas.PlanTemplate{
			Intent: "search",
			Steps: []schemas.Step{
				{Action: schemas.ActionNavigate, Target: "shop.example.com"},
				{Action: schemas.ActionFindElement, Target: "search field", Hints: []string{"search"},
					Resolved: &schemas.ResolvedElement{Selector: "#q"}},
				{Action: schemas.ActionVerifyCompletion},
			},
		},
	}
	recall := memory.RecallContext{Skills: []schemas.Skill{skill}}

	plan, err := p.CreatePlan("search for socks", "shop.example.com", recall, schemas.ScopeRead)
	require.NoError(t, err)
	assert.Equal(t, "search_shop", plan.SkillUsed)
	assert.Equal(t, "search", plan.Intent)
	assert.Equal(t, schemas.ActionVerifyCompletion, plan.Steps[len(plan.Steps)-1].Action)
	for _, s := range plan.Steps {
		assert.Nil(t, s.Resolved, "transient resolution caches never survive template instantiation")
	}
}

func TestCreatePlan_LowConfidenceSkillIgnored(t *testing.T) {
	p := newPlanner(t)
	recall := memory.RecallContext{Skills: []schemas.Skill{{
		Name:        "search_shop",
		Domain:      "shop.example.com",
		SuccessRate: 0.5,
		Template: schemas.PlanTemplate{Intent: "search", Steps: []schemas.Step{{Action: schemas.ActionNavigate}}},
	}}}

	plan, err := p.CreatePlan("search for socks", "shop.example.com", recall, schemas.ScopeRead)
	require.NoError(t, err)
	assert.Empty(t, plan.SkillUsed, "skills below the confidence bar fall through to templates")
	assert.Equal(t, "search", plan.Intent)
}

func TestDecompose_CompositeGoal(t *testing.T) {
	p := newPlanner(t)
	plan, err := p.CreatePlan("open the site then submit and capture a screenshot", "example.com", memory.RecallContext{}, schemas.ScopeSubmit)
	require.NoError(t, err)
	assert.Equal(t, "composite", plan.Intent)

	var kinds []schemas.ActionKind
	for _, s := range plan.Steps {
		kinds = append(kinds, s.Action)
	}
	assert.Contains(t, kinds, schemas.ActionClick)
	assert.Contains(t, kinds, schemas.ActionScreenshot)
	assert.Equal(t, schemas.ActionNavigate, kinds[0])
}
