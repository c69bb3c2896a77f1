// Package translate provides the translation gateway: provider clients, a
// provider chain, and the soft-fail Gateway the router depends on.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/livetranslator/internal/language"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported target language")
	// ErrNoProvider is returned in auto mode when neither DeepL nor an HTTP
	// translator is configured.
	ErrNoProvider = errors.New("no translation provider configured")
)

// Translator converts text into the target language.
type Translator interface {
	Translate(ctx context.Context, text string, target language.Language) (string, error)
}

// Config controls translator construction.
type Config struct {
	Mode        string
	DeepLAPIKey string
	DeepLURL    string
	HTTPURL     string
	HTTPAPIKey  string
	Timeout     time.Duration
	Retries     int
}

// New builds the translator selected by cfg.Mode (auto|deepl|libre|mock).
func New(cfg Config) (Translator, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoTranslator(cfg)
	case "deepl":
		if strings.TrimSpace(cfg.DeepLAPIKey) == "" {
			return nil, errors.New("deepl API key is required for deepl mode")
		}
		return NewDeepLTranslator(cfg.DeepLAPIKey, cfg.DeepLURL, cfg.Timeout, cfg.Retries), nil
	case "libre":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("translator HTTP url is required for libre mode")
		}
		return NewLibreTranslator(cfg.HTTPURL, cfg.HTTPAPIKey, cfg.Timeout), nil
	case "mock":
		return NewMockTranslator(), nil
	default:
		return nil, fmt.Errorf("unsupported translator mode %q", cfg.Mode)
	}
}

// newAutoTranslator prefers DeepL, chained to the HTTP translator when both
// are configured. The tagging mock is never picked here; it must be asked for.
func newAutoTranslator(cfg Config) (Translator, error) {
	var libre Translator
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		libre = NewLibreTranslator(cfg.HTTPURL, cfg.HTTPAPIKey, cfg.Timeout)
	}
	if strings.TrimSpace(cfg.DeepLAPIKey) != "" {
		deepl := NewDeepLTranslator(cfg.DeepLAPIKey, cfg.DeepLURL, cfg.Timeout, cfg.Retries)
		if libre != nil {
			return NewFallbackTranslator(deepl, libre), nil
		}
		return deepl, nil
	}
	if libre != nil {
		return libre, nil
	}
	return nil, ErrNoProvider
}
