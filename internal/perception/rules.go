// internal/perception/rules.go
package perception

import (
	"strings"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// semanticRule assigns text to a semantic bucket when any of its keywords
// matches. Rules are evaluated in order; the first match wins.
type semanticRule struct {
	bucket   string
	keywords []string
}

// semanticRules is the ordered classification table for perceived text.
// Buttons before links: "sign in" on a button must not classify as a link
// just because it also navigates.
var semanticRules = []semanticRule{
	{bucket: "buttons", keywords: []string{
		"submit", "continue", "next", "login", "log in", "sign in", "sign up",
		"register", "ok", "confirm", "apply", "save", "send", "buy", "add to cart",
		"checkout", "download", "search", "go", "accept", "agree", "start",
	}},
	{bucket: "inputs", keywords: []string{
		"email", "username", "password", "phone", "address", "first name",
		"last name", "card number", "zip", "postal", "city", "enter your",
		"type here", "search...",
	}},
	{bucket: "links", keywords: []string{
		"learn more", "read more", "view all", "see all", "forgot", "help",
		"terms", "privacy", "contact", "about", "home", "back to",
	}},
}

// tagBuckets maps structural tags straight to buckets; tag evidence beats
// keyword evidence.
var tagBuckets = map[string]string{
	"button":   "buttons",
	"input":    "inputs",
	"textarea": "inputs",
	"select":   "inputs",
	"a":        "links",
}

// classifyText returns the semantic bucket for a piece of text, defaulting
// to "content".
func classifyText(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range semanticRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.bucket
			}
		}
	}
	return "content"
}

// contextSignal flags a PageContext field when any of its markers appears in
// the page text.
type contextSignal struct {
	markers []string
	apply   func(*schemas.PageContext)
}

var contextSignals = []contextSignal{
	{markers: []string{"password", "sign in", "log in", "login"},
		apply: func(c *schemas.PageContext) { c.HasLogin = true }},
	{markers: []string{"search"},
		apply: func(c *schemas.PageContext) { c.HasSearch = true }},
	{markers: []string{"submit", "required field", "form"},
		apply: func(c *schemas.PageContext) { c.HasForms = true }},
	{markers: []string{"error", "invalid", "failed", "incorrect", "denied"},
		apply: func(c *schemas.PageContext) { c.HasErrors = true }},
}

// pageTypeRule resolves a page type from context flags and text. The table
// is ordered by priority; the first matching rule wins.
type pageTypeRule struct {
	label schemas.PageType
	match func(ctx schemas.PageContext, text string) bool
}

var pageTypeRules = []pageTypeRule{
	{schemas.PageAuthentication, func(ctx schemas.PageContext, text string) bool {
		return ctx.HasLogin
	}},
	{schemas.PageCommerce, func(ctx schemas.PageContext, text string) bool {
		return containsAny(text, "cart", "checkout", "price", "buy now", "add to cart")
	}},
	{schemas.PageSearchResults, func(ctx schemas.PageContext, text string) bool {
		return containsAny(text, "results for", "search results", "did you mean")
	}},
	{schemas.PageDashboard, func(ctx schemas.PageContext, text string) bool {
		return containsAny(text, "dashboard", "overview", "welcome back")
	}},
	{schemas.PageSettings, func(ctx schemas.PageContext, text string) bool {
		return containsAny(text, "settings", "preferences", "account settings")
	}},
	// PageContent is the fallback handled by the caller.
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// deriveContext computes page flags and type from the joined lowercase text.
func deriveContext(allText []string) schemas.PageContext {
	joined := strings.ToLower(strings.Join(allText, "\n"))

	var ctx schemas.PageContext
	for _, sig := range contextSignals {
		for _, m := range sig.markers {
			if strings.Contains(joined, m) {
				sig.apply(&ctx)
				break
			}
		}
	}

	ctx.PageType = schemas.PageContent
	for _, rule := range pageTypeRules {
		if rule.match(ctx, joined) {
			ctx.PageType = rule.label
			break
		}
	}
	return ctx
}
