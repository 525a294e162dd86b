// internal/planner/templates.go
package planner

import (
	"strings"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

func navigateStep(domain string) schemas.Step {
	return schemas.Step{
		Action: schemas.ActionNavigate,
		Target: domain,
	}
}

func buildLoginSteps(goal, domain string) []schemas.Step {
	steps := []schemas.Step{}
	if domain != "" {
		steps = append(steps, navigateStep(domain))
	}
	steps = append(steps,
		schemas.Step{
			Action: schemas.ActionFindElement,
			Target: "username field",
			Hints:  []string{"username", "email", "user", "login"},
		},
		schemas.Step{
			Action: schemas.ActionTypeText,
			Target: "username field",
			Value:  extractCredential(goal, "username"),
		},
		schemas.Step{
			Action: schemas.ActionFindElement,
			Target: "password field",
			Hints:  []string{"password", "pass"},
		},
		schemas.Step{
			Action: schemas.ActionTypeText,
			Target: "password field",
			Value:  extractCredential(goal, "password"),
		},
		schemas.Step{
			Action:               schemas.ActionClick,
			Target:               "login button",
			Hints:                []string{"login", "log in", "sign in", "submit", "continue"},
			RequiresConfirmation: true,
			Verify: &schemas.VerificationSpec{
				Indicators:       []string{"welcome", "dashboard", "account", "logout", "sign out"},
				ExpectNavigation: true,
			},
		},
	)
	return steps
}

func buildFormFillSteps(goal, domain string) []schemas.Step {
	steps := []schemas.Step{}
	if domain != "" {
		steps = append(steps, navigateStep(domain))
	}
	steps = append(steps,
		schemas.Step{
			Action: schemas.ActionFindElement,
			Target: "form field",
			Hints:  []string{"name", "email", "input", "field"},
		},
		schemas.Step{
			Action: schemas.ActionTypeText,
			Target: "form field",
			Value:  extractQuoted(goal),
		},
		schemas.Step{
			Action:               schemas.ActionClick,
			Target:               "submit button",
			Hints:                []string{"submit", "send", "continue", "next", "save"},
			RequiresConfirmation: true,
			Verify: &schemas.VerificationSpec{
				Indicators: []string{"thank you", "submitted", "received", "success"},
			},
		},
	)
	return steps
}

func buildSearchSteps(goal, domain string) []schemas.Step {
	steps := []schemas.Step{}
	if domain != "" {
		steps = append(steps, navigateStep(domain))
	}
	steps = append(steps,
		schemas.Step{
			Action: schemas.ActionFindElement,
			Target: "search field",
			Hints:  []string{"search", "query", "q", "find"},
		},
		schemas.Step{
			Action: schemas.ActionTypeText,
			Target: "search field",
			Value:  extractSearchQuery(goal),
			Submit: true,
			Verify: &schemas.VerificationSpec{
				Indicators:       []string{"results", "found", "showing"},
				ExpectNavigation: true,
			},
		},
	)
	return steps
}

func buildDownloadSteps(goal, domain string) []schemas.Step {
	steps := []schemas.Step{}
	if domain != "" {
		steps = append(steps, navigateStep(domain))
	}
	steps = append(steps,
		schemas.Step{
			Action: schemas.ActionFindElement,
			Target: "download link",
			Hints:  []string{"download", "export", "save", "get"},
		},
		schemas.Step{
			Action:               schemas.ActionClick,
			Target:               "download link",
			Hints:                []string{"download", "export", "save"},
			RequiresConfirmation: true,
		},
		schemas.Step{
			Action: schemas.ActionWait,
			Value:  "3",
		},
	)
	return steps
}

func buildSubmitSteps(goal, domain string) []schemas.Step {
	return []schemas.Step{
		{
			Action:               schemas.ActionClick,
			Target:               "submit button",
			Hints:                []string{"submit", "send", "confirm"},
			RequiresConfirmation: true,
			Verify: &schemas.VerificationSpec{
				Indicators: []string{"thank you", "submitted", "success"},
			},
		},
	}
}

func buildScreenshotSteps(goal, domain string) []schemas.Step {
	return []schemas.Step{
		{Action: schemas.ActionScreenshot, Target: "page"},
	}
}

// extractQuoted returns the first single- or double-quoted span in the goal.
func extractQuoted(goal string) string {
	for _, q := range []byte{'"', '\''} {
		start := strings.IndexByte(goal, q)
		if start < 0 {
			continue
		}
		end := strings.IndexByte(goal[start+1:], q)
		if end > 0 {
			return goal[start+1 : start+1+end]
		}
	}
	return ""
}

// extractSearchQuery pulls the text after a search verb, preferring an
// explicitly quoted query.
func extractSearchQuery(goal string) string {
	if q := extractQuoted(goal); q != "" {
		return q
	}
	lower := strings.ToLower(goal)
	for _, marker := range []string{"search for ", "look for ", "look up ", "find ", "search "} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			return strings.TrimSpace(goal[idx+len(marker):])
		}
	}
	return ""
}

// extractCredential looks for "<field> <value>" or "<field>: <value>" in the
// goal. Credentials rarely ride in goals; empty means the executor will leave
// the field untouched.
func extractCredential(goal, field string) string {
	lower := strings.ToLower(goal)
	idx := strings.Index(lower, field)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(goal[idx+len(field):])
	rest = strings.TrimPrefix(rest, ":")
	rest = strings.TrimPrefix(rest, "=")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ""
	}
	return strings.Fields(rest)[0]
}
