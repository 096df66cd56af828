package resolver

import "strings"

// Normalize reduces a raw entity value to its comparison form: lowercase,
// collapsed whitespace, no leading determiner, no trailing punctuation.
// "The Lean Startup" and "the lean startup." normalize identically.
func Normalize(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.Join(strings.Fields(normalized), " ")

	for _, determiner := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(normalized, determiner) {
			normalized = normalized[len(determiner):]
			break
		}
	}

	return strings.TrimRight(normalized, ".,!?")
}
