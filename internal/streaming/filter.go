package streaming

import "regexp"

// controlTokens matches provider sequence markers that must never reach users.
var controlTokens = regexp.MustCompile(`</?s>|<\|endoftext\|>|<\|im_start\|>|<\|im_end\|>`)

// StripControlTokens removes control token literals from s. Whitespace is
// left untouched: a delta of "\n\n" is meaningful formatting.
func StripControlTokens(s string) string {
	return controlTokens.ReplaceAllLiteralString(s, "")
}
