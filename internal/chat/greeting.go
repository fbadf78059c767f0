package chat

import "strings"

// greetingMaxLen is the trimmed length below which a message can count as a
// greeting.
const greetingMaxLen = 20

var greetingKeywords = []string{"hi", "hello", "hey", "greetings", "good morning", "good afternoon", "good evening"}

// IsGreeting reports whether text is a short greeting that gets the canned
// reply instead of an upstream call. Matching is a case-insensitive substring
// test, so short messages such as "this?" also qualify.
func IsGreeting(text string) bool {
	if len([]rune(strings.TrimSpace(text))) >= greetingMaxLen {
		return false
	}
	lower := strings.ToLower(text)
	for _, k := range greetingKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
