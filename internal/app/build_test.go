package app

import (
	"context"
	"testing"

	"github.com/ent0n29/livetranslator/internal/config"
	"github.com/ent0n29/livetranslator/internal/translate"
)

func TestTranslatorKind(t *testing.T) {
	cases := []struct {
		cfg  translate.Config
		want string
	}{
		{translate.Config{Mode: "mock"}, "mock"},
		{translate.Config{Mode: "auto", DeepLAPIKey: "k"}, "deepl"},
		{translate.Config{Mode: "libre", HTTPURL: "http://libre.test/translate"}, "libre"},
		{translate.Config{Mode: "auto", DeepLAPIKey: "k", HTTPURL: "http://libre.test/translate"}, "deepl+libre"},
	}
	for _, tc := range cases {
		tr, err := translate.New(tc.cfg)
		if err != nil {
			t.Fatalf("New(%+v) error = %v", tc.cfg, err)
		}
		if got := translatorKind(tr); got != tc.want {
			t.Fatalf("translatorKind(%+v) = %q, want %q", tc.cfg, got, tc.want)
		}
	}
}

func TestBuildRejectsBlankSecret(t *testing.T) {
	_, err := Build(context.Background(), config.Config{TranslatorMode: "mock"}, nil)
	if err == nil {
		t.Fatalf("Build() expected error for blank secret")
	}
}
