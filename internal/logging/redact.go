package logging

import (
	"regexp"

	"go.uber.org/zap"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

const maxLoggedText = 120

// Redact masks emails, card numbers and phone numbers in speech text before it
// reaches a log line.
func Redact(input string) string {
	out := emailPattern.ReplaceAllString(input, "[email]")
	// Cards first, or the phone pattern eats them.
	out = cardPattern.ReplaceAllString(out, "[card]")
	return phonePattern.ReplaceAllString(out, "[phone]")
}

// Text is a zap field carrying redacted, truncated speech text.
func Text(key, s string) zap.Field {
	s = Redact(s)
	if len(s) > maxLoggedText {
		s = s[:maxLoggedText] + "..."
	}
	return zap.String(key, s)
}
