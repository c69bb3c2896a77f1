// Package presence publishes the roster of connected display names.
package presence

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/livetranslator/internal/logging"
	"github.com/ent0n29/livetranslator/internal/observability"
	"github.com/ent0n29/livetranslator/internal/protocol"
	"github.com/ent0n29/livetranslator/internal/registry"
)

// Broadcaster sends the full roster to every registered session.
//
// Publish calls are serialized: each call snapshots and enqueues before the
// next one starts, so per-connection outbound queues always see rosters in
// the order the registry produced them.
type Broadcaster struct {
	mu      sync.Mutex
	reg     *registry.Registry
	metrics *observability.Metrics
	log     *zap.Logger
}

func NewBroadcaster(reg *registry.Registry, metrics *observability.Metrics, log *zap.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, metrics: metrics, log: logging.OrNop(log)}
}

// Roster returns the display names of all registered sessions.
func (b *Broadcaster) Roster() []string {
	return names(b.reg.Snapshot())
}

// Publish delivers the current roster to every session in the snapshot and
// returns the roster that was sent. Send failures are logged and never
// returned.
func (b *Broadcaster) Publish(ctx context.Context) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sessions := b.reg.Snapshot()
	users := names(sessions)

	payload, err := json.Marshal(protocol.NewPresence(users))
	if err != nil {
		b.log.Error("encode presence", zap.Error(err))
		return users
	}

	g, _ := errgroup.WithContext(ctx)
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			err := s.Send(payload)
			b.metrics.ObserveDelivery("presence", err)
			if err != nil {
				b.log.Debug("presence delivery failed",
					zap.String("handle", string(s.Handle)),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	b.metrics.ObservePresence()
	b.log.Debug("presence published", zap.Int("count", len(users)))
	return users
}

func names(sessions []registry.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.DisplayName)
	}
	return out
}
