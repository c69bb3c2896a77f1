package translate

import (
	"context"
	"fmt"

	"github.com/ent0n29/livetranslator/internal/language"
)

// MockTranslator tags text with the target code instead of translating. Used
// when no provider is configured.
type MockTranslator struct{}

func NewMockTranslator() *MockTranslator { return &MockTranslator{} }

func (MockTranslator) Translate(ctx context.Context, text string, target language.Language) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	code, ok := DeepLTargetCode(target)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, target)
	}
	return fmt.Sprintf("[%s] %s", code, text), nil
}
