package problems

import "strings"

// NormalizeAnswer lowercases s, trims it and collapses inner whitespace runs
// to a single space. No other canonicalisation happens: "3/4" and "3 / 4"
// stay different answers.
func NormalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// IsCorrect compares a submitted answer against the reference answer
func IsCorrect(submitted, correct string) bool {
	return NormalizeAnswer(submitted) == NormalizeAnswer(correct)
}
