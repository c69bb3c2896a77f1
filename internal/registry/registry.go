package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/livetranslator/internal/language"
)

// Status is a session's activity state.
type Status string

const (
	StatusInactive Status = "inactive"
	// StatusActive marks a session that is currently speaking; it receives no
	// translations until it goes back to inactive.
	StatusActive Status = "active"
)

// ParseStatus accepts only the two known statuses.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusInactive, StatusActive:
		return Status(raw), true
	default:
		return "", false
	}
}

var ErrNotFound = errors.New("session not found")

// Handle identifies one live connection. Handles are never reused.
type Handle string

func NewHandle() Handle {
	return Handle(uuid.NewString())
}

// Sender delivers a serialized frame to the connection behind a session.
// Implementations must not block on network I/O.
type Sender interface {
	Send(payload []byte) error
}

// Session is the server-side state of one authenticated connection. Values
// returned by the registry are copies; only Status changes after insert.
type Session struct {
	Handle      Handle
	DisplayName string
	IdentityID  string
	Language    language.Language
	Status      Status
	ConnectedAt time.Time

	sender Sender
	seq    uint64
}

func NewSession(h Handle, displayName, identityID string, lang language.Language, sender Sender) Session {
	return Session{
		Handle:      h,
		DisplayName: displayName,
		IdentityID:  identityID,
		Language:    lang,
		Status:      StatusInactive,
		ConnectedAt: time.Now().UTC(),
		sender:      sender,
	}
}

// Send forwards payload to the session's connection.
func (s Session) Send(payload []byte) error {
	if s.sender == nil {
		return errors.New("session has no sender")
	}
	return s.sender.Send(payload)
}

// Registry is the authoritative set of connected sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Handle]*Session
	seq      uint64
}

func New() *Registry {
	return &Registry{sessions: make(map[Handle]*Session)}
}

// Insert registers s under s.Handle. Inserting an existing handle replaces it.
func (r *Registry) Insert(s Session) {
	c := s
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.seq = r.seq
	r.sessions[s.Handle] = &c
}

// Remove deletes h. It reports whether a session was present; removing a
// missing handle is a no-op.
func (r *Registry) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[h]; !ok {
		return false
	}
	delete(r.sessions, h)
	return true
}

func (r *Registry) UpdateStatus(h Handle, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[h]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	return nil
}

func (r *Registry) Get(h Handle) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[h]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

// Snapshot returns a point-in-time copy of every session in insertion order.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
