// Package journal records connection lifecycle events. Message text is never
// stored.
package journal

import (
	"context"
	"time"
)

type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventAuthFailed   EventKind = "auth_failed"
	EventDisconnected EventKind = "disconnected"
)

// Event is one lifecycle transition of a connection.
type Event struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	Handle      string    `json:"handle,omitempty"`
	IdentityID  string    `json:"identity_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Language    string    `json:"lang,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists lifecycle events and returns the most recent ones.
type Store interface {
	Record(ctx context.Context, ev Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

const DefaultRecentLimit = 50
