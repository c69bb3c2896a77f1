package presence

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/livetranslator/internal/language"
	"github.com/ent0n29/livetranslator/internal/observability"
	"github.com/ent0n29/livetranslator/internal/protocol"
	"github.com/ent0n29/livetranslator/internal/registry"
)

type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *recordingSender) Send(payload []byte) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), payload...))
	return nil
}

func (s *recordingSender) rosters(t *testing.T) [][]string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, 0, len(s.frames))
	for _, f := range s.frames {
		var p protocol.Presence
		if err := json.Unmarshal(f, &p); err != nil {
			t.Fatalf("decode presence: %v", err)
		}
		if p.Type != protocol.TypePresence {
			t.Fatalf("type = %q, want presence", p.Type)
		}
		out = append(out, p.Users)
	}
	return out
}

func insert(r *registry.Registry, name string, sender registry.Sender) registry.Handle {
	h := registry.NewHandle()
	r.Insert(registry.NewSession(h, name, "id-"+name, language.English, sender))
	return h
}

func TestPublishDeliversFullRosterToEverySession(t *testing.T) {
	reg := registry.New()
	a, b := &recordingSender{}, &recordingSender{}
	insert(reg, "alice", a)
	insert(reg, "bob", b)

	got := NewBroadcaster(reg, nil, nil).Publish(context.Background())

	want := []string{"alice", "bob"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Publish() = %v, want %v", got, want)
	}
	for name, s := range map[string]*recordingSender{"alice": a, "bob": b} {
		rosters := s.rosters(t)
		if len(rosters) != 1 || !reflect.DeepEqual(rosters[0], want) {
			t.Fatalf("%s received %v, want one roster %v", name, rosters, want)
		}
	}
}

func TestPublishContainsSendFailures(t *testing.T) {
	reg := registry.New()
	ok := &recordingSender{}
	insert(reg, "gone", &recordingSender{err: errors.New("closed")})
	insert(reg, "alive", ok)

	NewBroadcaster(reg, nil, nil).Publish(context.Background())

	if n := len(ok.rosters(t)); n != 1 {
		t.Fatalf("healthy recipient got %d rosters, want 1", n)
	}
}

func TestPublishOnEmptyRegistry(t *testing.T) {
	got := NewBroadcaster(registry.New(), nil, nil).Publish(context.Background())
	if len(got) != 0 {
		t.Fatalf("Publish() = %v, want empty", got)
	}
}

func TestRosterTracksConnectAndDisconnect(t *testing.T) {
	reg := registry.New()
	observer := &recordingSender{}
	insert(reg, "observer", observer)
	b := NewBroadcaster(reg, observability.NewMetrics("test", prometheus.NewRegistry()), nil)

	d := insert(reg, "dora", &recordingSender{})
	b.Publish(context.Background())
	reg.Remove(d)
	b.Publish(context.Background())

	rosters := observer.rosters(t)
	if len(rosters) != 2 {
		t.Fatalf("observer got %d rosters, want 2", len(rosters))
	}
	if !reflect.DeepEqual(rosters[0], []string{"observer", "dora"}) {
		t.Fatalf("first roster = %v", rosters[0])
	}
	if !reflect.DeepEqual(rosters[1], []string{"observer"}) {
		t.Fatalf("final roster = %v", rosters[1])
	}
	if got := b.Roster(); !reflect.DeepEqual(got, []string{"observer"}) {
		t.Fatalf("Roster() = %v", got)
	}
}

func TestConcurrentPublishesEndOnCurrentRoster(t *testing.T) {
	reg := registry.New()
	observer := &recordingSender{}
	insert(reg, "observer", observer)
	b := NewBroadcaster(reg, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := insert(reg, "tmp", &recordingSender{})
			b.Publish(context.Background())
			reg.Remove(h)
			b.Publish(context.Background())
		}()
	}
	wg.Wait()

	rosters := observer.rosters(t)
	if len(rosters) != 32 {
		t.Fatalf("observer got %d rosters, want 32", len(rosters))
	}
	last := rosters[len(rosters)-1]
	if !reflect.DeepEqual(last, []string{"observer"}) {
		t.Fatalf("last roster = %v, want only observer", last)
	}
}
