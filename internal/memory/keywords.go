// internal/memory/keywords.go
package memory

import "strings"

// stopwords are ignored when fingerprinting a goal. The set is deliberately
// small; over-filtering erases the signal short goals carry.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "on": {}, "in": {}, "at": {},
	"of": {}, "for": {}, "and": {}, "with": {}, "my": {}, "me": {},
	"please": {}, "then": {}, "into": {}, "from": {},
}

// Keywords tokenizes a goal into its lowercase content words.
func Keywords(goal string) map[string]struct{} {
	out := map[string]struct{}{}
	fields := strings.FieldsFunc(strings.ToLower(goal), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, f := range fields {
		if _, skip := stopwords[f]; skip || len(f) < 2 {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

// Jaccard is |a ∩ b| / |a ∪ b|; two empty sets score 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
