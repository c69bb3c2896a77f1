package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultRingSize = 1024

// InMemoryStore keeps the last N events in a ring.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
}

func NewInMemoryStore(size int) *InMemoryStore {
	if size <= 0 {
		size = defaultRingSize
	}
	return &InMemoryStore{events: make([]Event, size)}
}

func (s *InMemoryStore) Record(_ context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[s.next] = ev
	s.next = (s.next + 1) % len(s.events)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to limit events, oldest first.
func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.next
	if s.full {
		n = len(s.events)
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > n {
		limit = n
	}

	out := make([]Event, 0, limit)
	start := s.next - limit
	for i := 0; i < limit; i++ {
		idx := (start + i + len(s.events)) % len(s.events)
		out = append(out, s.events[idx])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
