package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/livetranslator/internal/config"
	"github.com/ent0n29/livetranslator/internal/httpapi"
	"github.com/ent0n29/livetranslator/internal/identity"
	"github.com/ent0n29/livetranslator/internal/journal"
	"github.com/ent0n29/livetranslator/internal/logging"
	"github.com/ent0n29/livetranslator/internal/observability"
	"github.com/ent0n29/livetranslator/internal/presence"
	"github.com/ent0n29/livetranslator/internal/registry"
	"github.com/ent0n29/livetranslator/internal/relay"
	"github.com/ent0n29/livetranslator/internal/translate"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Registry *registry.Registry
	Metrics  *observability.Metrics
	Journal  journal.Store

	// TranslatorKind names the concrete translator chosen for the configured mode.
	TranslatorKind string

	// Cleanup should be called on shutdown to release external resources (DB).
	Cleanup func() error
}

// Build wires every component from cfg. Metrics go to the default
// Prometheus registry.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*BuildResult, error) {
	log = logging.OrNop(log)

	ids, err := identity.NewService(cfg.SecretKey, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("identity service init failed: %w", err)
	}

	tr, err := translate.New(translate.Config{
		Mode:        cfg.TranslatorMode,
		DeepLAPIKey: cfg.DeepLAPIKey,
		DeepLURL:    cfg.DeepLAPIURL,
		HTTPURL:     cfg.TranslatorHTTPURL,
		HTTPAPIKey:  cfg.TranslatorHTTPAPIKey,
		Timeout:     cfg.TranslatorTimeout,
		Retries:     cfg.TranslatorRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("translator init failed: %w", err)
	}
	kind := translatorKind(tr)
	log.Info("translator ready", zap.String("mode", cfg.TranslatorMode), zap.String("kind", kind))

	store, err := journal.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("journal store init failed: %w", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)
	reg := registry.New()
	broadcaster := presence.NewBroadcaster(reg, metrics, log.Named("presence"))
	router := relay.NewRouter(reg, translate.NewGateway(tr, log.Named("translate")), cfg.MaxMessageSize, metrics, log.Named("relay"))

	api := httpapi.New(cfg, httpapi.Deps{
		Identity: ids,
		Registry: reg,
		Presence: broadcaster,
		Router:   router,
		Journal:  store,
		Metrics:  metrics,
		Logger:   log.Named("http"),
	})

	return &BuildResult{
		Config:         cfg,
		API:            api,
		Registry:       reg,
		Metrics:        metrics,
		Journal:        store,
		TranslatorKind: kind,
		Cleanup:        store.Close,
	}, nil
}

func translatorKind(tr translate.Translator) string {
	switch tr.(type) {
	case *translate.DeepLTranslator:
		return "deepl"
	case *translate.LibreTranslator:
		return "libre"
	case *translate.FallbackTranslator:
		return "deepl+libre"
	case *translate.MockTranslator:
		return "mock"
	default:
		return fmt.Sprintf("%T", tr)
	}
}
