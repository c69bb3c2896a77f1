package logging

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	out := Redact("Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242.")
	for _, marker := range []string{"[email]", "[phone]", "[card]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "sam@example.com") || strings.Contains(out, "4242") {
		t.Fatalf("output still contains PII: %q", out)
	}
}

func TestTextTruncates(t *testing.T) {
	f := Text("text", strings.Repeat("a", 500))
	if len(f.String) != maxLoggedText+3 {
		t.Fatalf("len = %d, want %d", len(f.String), maxLoggedText+3)
	}
	if f := Text("text", "hello"); f.String != "hello" {
		t.Fatalf("Text() = %q, want hello", f.String)
	}
}
