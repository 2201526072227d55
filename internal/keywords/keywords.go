// Package keywords implements ordered, case-insensitive keyword rules.
package keywords

import (
	"strings"

	"golang.org/x/text/cases"
)

// Rule maps a set of terms to a label.
type Rule struct {
	Label string
	Terms []string
}

// Fold returns the case-folded form of s used for caseless comparison.
// A new Caser is built per call; Casers are not safe for concurrent use.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// ContainsAny reports whether s contains any of terms, ignoring case.
func ContainsAny(s string, terms ...string) bool {
	return containsAnyFolded(Fold(s), terms)
}

// Match returns the label of the first rule with a term in s, ignoring
// case. Rules are evaluated in order.
func Match(s string, rules []Rule) (string, bool) {
	folded := Fold(s)
	for _, r := range rules {
		if containsAnyFolded(folded, r.Terms) {
			return r.Label, true
		}
	}
	return "", false
}

func containsAnyFolded(folded string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(folded, Fold(t)) {
			return true
		}
	}
	return false
}
