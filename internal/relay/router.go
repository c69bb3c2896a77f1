// Package relay routes speech from one session to every other idle session,
// translating once per target language.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/livetranslator/internal/language"
	"github.com/ent0n29/livetranslator/internal/logging"
	"github.com/ent0n29/livetranslator/internal/observability"
	"github.com/ent0n29/livetranslator/internal/protocol"
	"github.com/ent0n29/livetranslator/internal/registry"
	"github.com/ent0n29/livetranslator/internal/translate"
)

const DefaultMaxMessageSize = 10000

// Outcome summarizes one Route call.
type Outcome struct {
	Dropped    string
	Groups     int
	Recipients int
	Fallbacks  int
}

type Router struct {
	reg     *registry.Registry
	gateway *translate.Gateway
	maxSize int
	metrics *observability.Metrics
	log     *zap.Logger
}

func NewRouter(reg *registry.Registry, gateway *translate.Gateway, maxSize int, metrics *observability.Metrics, log *zap.Logger) *Router {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &Router{
		reg:     reg,
		gateway: gateway,
		maxSize: maxSize,
		metrics: metrics,
		log:     logging.OrNop(log),
	}
}

// MaxSize is the largest accepted text, in bytes.
func (r *Router) MaxSize() int { return r.maxSize }

// Route fans text out from source to every other inactive session, one
// translation per language group. The source is marked active for the
// duration of the call and is always inactive again when Route returns.
func (r *Router) Route(ctx context.Context, source registry.Handle, text string) (out Outcome) {
	if len(text) > r.maxSize {
		r.metrics.DropFrame("too_large")
		r.log.Warn("speech too large", zap.String("handle", string(source)), zap.Int("size", len(text)))
		out.Dropped = "too_large"
		return out
	}

	if err := r.reg.UpdateStatus(source, registry.StatusActive); err != nil {
		r.log.Debug("speech from unregistered session", zap.String("handle", string(source)))
		out.Dropped = "unregistered"
		return out
	}

	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("route panic", zap.String("handle", string(source)), zap.Any("panic", rec))
		}
		_ = r.reg.UpdateStatus(source, registry.StatusInactive)
		r.metrics.ObserveRoute(time.Since(started))
	}()

	// The sender's name is fixed here; every frame of this fan-out carries it
	// even if the source disconnects mid-route.
	src, err := r.reg.Get(source)
	if err != nil {
		out.Dropped = "unregistered"
		return out
	}
	from := src.DisplayName

	groups := r.partition(source)
	if len(groups) == 0 {
		r.log.Debug("no recipients", zap.String("handle", string(source)))
		return out
	}

	results := make([]groupResult, len(groups))
	var g errgroup.Group
	i := 0
	for lang, recipients := range groups {
		idx, lang, recipients := i, lang, recipients
		i++
		g.Go(func() error {
			results[idx] = r.deliverGroup(ctx, text, from, lang, recipients)
			return nil
		})
	}
	_ = g.Wait()

	out.Groups = len(groups)
	for _, res := range results {
		out.Recipients += res.delivered
		if res.fellBack {
			out.Fallbacks++
		}
	}
	r.log.Info("speech routed",
		zap.String("from", from),
		zap.Int("groups", out.Groups),
		zap.Int("recipients", out.Recipients),
		zap.Int("fallbacks", out.Fallbacks),
		zap.Duration("elapsed", time.Since(started)),
	)
	return out
}

// partition groups every other inactive session by declared language.
func (r *Router) partition(source registry.Handle) map[language.Language][]registry.Session {
	groups := make(map[language.Language][]registry.Session)
	for _, s := range r.reg.Snapshot() {
		if s.Handle == source || s.Status != registry.StatusInactive {
			continue
		}
		groups[s.Language] = append(groups[s.Language], s)
	}
	return groups
}

type groupResult struct {
	delivered int
	fellBack  bool
}

func (r *Router) deliverGroup(ctx context.Context, text, from string, lang language.Language, recipients []registry.Session) (res groupResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("language group panic", zap.String("lang", string(lang)), zap.Any("panic", rec))
		}
	}()

	started := time.Now()
	translated, fellBack := r.gateway.Translate(ctx, text, lang)
	r.metrics.ObserveTranslation(string(lang), time.Since(started), fellBack)
	res.fellBack = fellBack

	payload, err := json.Marshal(protocol.NewSpeech(translated, from))
	if err != nil {
		r.log.Error("encode speech", zap.Error(err))
		return res
	}

	delivered := make([]bool, len(recipients))
	var g errgroup.Group
	for i, s := range recipients {
		i, s := i, s
		g.Go(func() error {
			err := send(s, payload)
			r.metrics.ObserveDelivery("speech", err)
			if err != nil {
				r.log.Debug("speech delivery failed",
					zap.String("handle", string(s.Handle)),
					zap.String("lang", string(lang)),
					zap.Error(err),
				)
				return nil
			}
			delivered[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for _, ok := range delivered {
		if ok {
			res.delivered++
		}
	}
	return res
}

func send(s registry.Session, payload []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("send panic: %v", rec)
		}
	}()
	return s.Send(payload)
}
