package translate

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/livetranslator/internal/language"
)

// FallbackTranslator tries primary first and asks secondary on error.
type FallbackTranslator struct {
	primary  Translator
	fallback Translator
}

func NewFallbackTranslator(primary, fallback Translator) *FallbackTranslator {
	return &FallbackTranslator{primary: primary, fallback: fallback}
}

func (t *FallbackTranslator) Translate(ctx context.Context, text string, target language.Language) (string, error) {
	if t.primary == nil {
		if t.fallback == nil {
			return "", errors.New("fallback translator misconfigured")
		}
		return t.fallback.Translate(ctx, text, target)
	}
	out, err := t.primary.Translate(ctx, text, target)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.Canceled) || t.fallback == nil {
		return "", err
	}
	out, fbErr := t.fallback.Translate(ctx, text, target)
	if fbErr != nil {
		return "", fmt.Errorf("primary translator error: %w; fallback translator error: %v", err, fbErr)
	}
	return out, nil
}
