package translate

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/livetranslator/internal/language"
	"github.com/ent0n29/livetranslator/internal/logging"
)

// Gateway wraps a Translator with the soft-fail contract: it always returns
// usable text, falling back to the original when translation is impossible.
type Gateway struct {
	tr  Translator
	log *zap.Logger
}

func NewGateway(tr Translator, log *zap.Logger) *Gateway {
	return &Gateway{tr: tr, log: logging.OrNop(log)}
}

// Translate returns the translation of text into target. fellBack is true when
// the returned string is the original text because of an unknown language, a
// provider error, a panic, or an empty result.
func (g *Gateway) Translate(ctx context.Context, text string, target language.Language) (out string, fellBack bool) {
	if !target.Valid() {
		g.log.Warn("unknown target language", zap.String("lang", string(target)))
		return text, true
	}
	if g.tr == nil {
		return text, true
	}

	defer func() {
		if r := recover(); r != nil {
			g.log.Error("translator panic", zap.String("lang", string(target)), zap.Any("panic", r))
			out, fellBack = text, true
		}
	}()

	translated, err := g.tr.Translate(ctx, text, target)
	if err != nil {
		g.log.Error("translation error", zap.String("lang", string(target)), zap.Error(err))
		return text, true
	}
	if strings.TrimSpace(translated) == "" {
		g.log.Warn("empty translation", zap.String("lang", string(target)))
		return text, true
	}
	g.log.Debug("translated", zap.String("lang", string(target)), logging.Text("text", translated))
	return translated, false
}
