package logging

import "testing"

func TestNewAcceptsKnownLevelsAndFormats(t *testing.T) {
	for _, tc := range []struct{ level, format string }{
		{"info", "console"},
		{"debug", "json"},
		{"warn", ""},
	} {
		l, err := New(tc.level, tc.format)
		if err != nil {
			t.Fatalf("New(%q, %q) error = %v", tc.level, tc.format, err)
		}
		if l == nil {
			t.Fatalf("New(%q, %q) returned nil logger", tc.level, tc.format)
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "console"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("OrNop(nil) returned nil")
	}
}
