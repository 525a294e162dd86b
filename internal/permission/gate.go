// internal/permission/gate.go

// Package permission implements the advisory policy gate consulted exactly
// once before any step runs. It is policy, not a security boundary: a
// determined integrator can bypass it, and the host is responsible for real
// sandboxing.
package permission

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Decision is the result of a gate validation.
type Decision struct {
	Allowed bool
	Reason  string
}

// ConfirmationFunc is the human-in-the-loop hook for sensitive actions. The
// host integrator wires it to a real approval channel; with no channel
// wired, sensitive actions are denied rather than silently approved.
type ConfirmationFunc func(ctx context.Context, action string, details map[string]string) (bool, error)

// scopeActions maps each permission scope to the action kinds it allows.
// Scopes are strictly widening: every scope includes everything below it.
var scopeActions = map[schemas.PermissionScope]map[schemas.ActionKind]bool{
	schemas.ScopeRead: kindSet(
		schemas.ActionNavigate, schemas.ActionFindElement, schemas.ActionScroll,
		schemas.ActionWait, schemas.ActionScreenshot, schemas.ActionVerifyCompletion,
	),
	schemas.ScopeWrite: kindSet(
		schemas.ActionNavigate, schemas.ActionFindElement, schemas.ActionScroll,
		schemas.ActionWait, schemas.ActionScreenshot, schemas.ActionVerifyCompletion,
		schemas.ActionClick, schemas.ActionTypeText,
	),
	schemas.ScopeSubmit: kindSet(
		schemas.ActionNavigate, schemas.ActionFindElement, schemas.ActionScroll,
		schemas.ActionWait, schemas.ActionScreenshot, schemas.ActionVerifyCompletion,
		schemas.ActionClick, schemas.ActionTypeText,
	),
	schemas.ScopePayment: kindSet(
		schemas.ActionNavigate, schemas.ActionFindElement, schemas.ActionScroll,
		schemas.ActionWait, schemas.ActionScreenshot, schemas.ActionVerifyCompletion,
		schemas.ActionClick, schemas.ActionTypeText,
	),
}

func kindSet(kinds ...schemas.ActionKind) map[schemas.ActionKind]bool {
	m := make(map[schemas.ActionKind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// dangerousCategories groups goal keywords that demand elevated scopes.
// A category only blocks when the requested scope is submit or payment,
// because a read-only run cannot act on the risk it names.
var dangerousCategories = []struct {
	name     string
	keywords []string
}{
	{"payment", []string{"payment", "purchase", "pay ", "credit card", "checkout", "buy "}},
	{"account_change", []string{"change password", "delete account", "close account", "change email"}},
	{"data_deletion", []string{"delete all", "remove all", "erase", "wipe"}},
	{"financial", []string{"transfer", "withdraw", "bank", "wire", "invest"}},
}

// sensitiveActions is the fixed list of action names that require a
// confirmation round-trip before execution.
var sensitiveActions = map[string]bool{
	"submit_form":     true,
	"submit_payment":  true,
	"delete_data":     true,
	"change_settings": true,
	"download_file":   true,
}

// Gate validates goal/domain/scope triples and brokers confirmations.
type Gate struct {
	logger         *zap.Logger
	allowedDomains []string
	confirm        ConfirmationFunc
}

// NewGate creates a gate. allowedDomains empty means every domain is
// permitted. confirm may be nil.
func NewGate(logger *zap.Logger, allowedDomains []string, confirm ConfirmationFunc) *Gate {
	return &Gate{
		logger:         logger.Named("permission"),
		allowedDomains: allowedDomains,
		confirm:        confirm,
	}
}

// Validate checks, in order: the domain allow-list, the scope table, then
// dangerous-keyword categories. It is called exactly once per run, before
// step 0.
func (g *Gate) Validate(goal, domain string, scope schemas.PermissionScope) Decision {
	if !g.domainAllowed(domain) {
		return Decision{Allowed: false, Reason: "domain " + domain + " is not in the allow-list"}
	}

	if _, ok := scopeActions[scope]; !ok {
		return Decision{Allowed: false, Reason: "unknown permission scope " + string(scope)}
	}

	if scope == schemas.ScopeSubmit || scope == schemas.ScopePayment {
		if cat := g.dangerousCategory(goal); cat != "" {
			g.logger.Warn("Goal rejected by dangerous-keyword policy",
				zap.String("category", cat), zap.String("scope", string(scope)))
			return Decision{Allowed: false, Reason: "goal matches dangerous category " + cat + " under scope " + string(scope)}
		}
	}

	return Decision{Allowed: true}
}

// ActionAllowed reports whether an action kind falls within a scope. Unknown
// scopes allow nothing.
func (g *Gate) ActionAllowed(scope schemas.PermissionScope, kind schemas.ActionKind) bool {
	set, ok := scopeActions[scope]
	if !ok {
		return false
	}
	return set[kind]
}

// RequestConfirmation runs the human-in-the-loop checkpoint for a sensitive
// action name. Non-sensitive actions pass through without a round-trip.
// With no channel wired, sensitive actions are denied: silence is not
// approval.
func (g *Gate) RequestConfirmation(ctx context.Context, action string, details map[string]string) (bool, error) {
	if !sensitiveActions[action] {
		return true, nil
	}
	if g.confirm == nil {
		g.logger.Warn("Sensitive action has no confirmation channel wired; denying",
			zap.String("action", action))
		return false, nil
	}
	return g.confirm(ctx, action, details)
}

// domainAllowed is permissive when the list is empty, always allows local
// and development hosts, and otherwise accepts substring containment in
// either direction.
func (g *Gate) domainAllowed(domain string) bool {
	if domain == "" || len(g.allowedDomains) == 0 {
		return true
	}
	if isLocalHost(domain) {
		return true
	}
	lower := strings.ToLower(domain)
	for _, allowed := range g.allowedDomains {
		a := strings.ToLower(allowed)
		if strings.Contains(lower, a) || strings.Contains(a, lower) {
			return true
		}
	}
	return false
}

func isLocalHost(domain string) bool {
	lower := strings.ToLower(domain)
	return lower == "localhost" ||
		strings.HasPrefix(lower, "localhost:") ||
		strings.HasPrefix(lower, "127.") ||
		strings.HasPrefix(lower, "0.0.0.0") ||
		strings.HasSuffix(lower, ".local") ||
		strings.HasSuffix(lower, ".test") ||
		strings.HasSuffix(lower, ".localdomain")
}

// dangerousCategory returns the first matching category name, or "".
func (g *Gate) dangerousCategory(goal string) string {
	lower := strings.ToLower(goal)
	for _, cat := range dangerousCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return cat.name
			}
		}
	}
	return ""
}
