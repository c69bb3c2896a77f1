package main

import (
	"reflect"
	"testing"
	"time"

	"github.com/ent0n29/livetranslator/internal/language"
)

func TestWSURLFor(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:8765":       "ws://127.0.0.1:8765/",
		"https://relay.example/base/": "wss://relay.example/base/",
	}
	for in, want := range cases {
		got, err := wsURLFor(in)
		if err != nil {
			t.Fatalf("wsURLFor(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("wsURLFor(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := wsURLFor("ftp://x"); err == nil {
		t.Fatalf("wsURLFor(ftp) expected error")
	}
}

func TestParseLangs(t *testing.T) {
	got, err := parseLangs("french, German,,spanish")
	if err != nil {
		t.Fatalf("parseLangs() error = %v", err)
	}
	want := []language.Language{language.French, language.German, language.Spanish}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseLangs() = %v, want %v", got, want)
	}
	if _, err := parseLangs("French,Klingon"); err == nil {
		t.Fatalf("parseLangs() expected error for unknown language")
	}
}

func TestSplitTexts(t *testing.T) {
	got := splitTexts(" a | |b ")
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("splitTexts() = %v", got)
	}
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{5, 1, 3, 2, 4}
	if got := percentile(samples, 0.5); got != 3 {
		t.Fatalf("p50 = %v, want 3", got)
	}
	if got := percentile(samples, 1); got != 5 {
		t.Fatalf("max = %v, want 5", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("empty percentile = %v, want 0", got)
	}
}
