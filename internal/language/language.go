package language

import "strings"

// Language is a supported translation target, keyed by its display name.
type Language string

const (
	English    Language = "English"
	French     Language = "French"
	German     Language = "German"
	Spanish    Language = "Spanish"
	Italian    Language = "Italian"
	Portuguese Language = "Portuguese"
)

// Default is used when a client declares no language or an unknown one.
const Default = English

var supported = []Language{English, French, German, Spanish, Italian, Portuguese}

// Supported returns the closed set of languages in display order.
func Supported() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

// Parse matches raw against the supported set, ignoring case and surrounding
// whitespace. ok is false when raw is blank or unknown.
func Parse(raw string) (Language, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", false
	}
	for _, l := range supported {
		if strings.EqualFold(string(l), v) {
			return l, true
		}
	}
	return "", false
}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	for _, s := range supported {
		if s == l {
			return true
		}
	}
	return false
}

func (l Language) String() string { return string(l) }
