package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Card numbers must be masked before the phone pattern can claim them.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// LogPreview returns a redacted single-line excerpt of user content, cut to
// at most limit runes plus an ellipsis.
func LogPreview(input string, limit int) string {
	redacted, _ := RedactPII(strings.Join(strings.Fields(input), " "))
	if limit <= 0 {
		return redacted
	}
	runes := []rune(redacted)
	if len(runes) <= limit {
		return redacted
	}
	return string(runes[:limit]) + "..."
}
