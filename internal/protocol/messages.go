package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeAuth     MessageType = "auth"
	TypeStatus   MessageType = "status"
	TypeSpeech   MessageType = "speech"
	TypePresence MessageType = "presence"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrInvalidAuth     = errors.New("invalid authentication message")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

// Auth must be the first frame on every connection.
type Auth struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token"`
	Name  string      `json:"name,omitempty"`
	Lang  string      `json:"lang,omitempty"`
}

type Status struct {
	Type   MessageType `json:"type"`
	Status string      `json:"status"`
}

// Speech is used in both directions. From is only meaningful server->client
// and is always encoded there; inbound values are discarded.
type Speech struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
	From string      `json:"from"`
}

// Presence carries the full roster, not a diff.
type Presence struct {
	Type  MessageType `json:"type"`
	Users []string    `json:"users"`
}

// ParseAuth decodes the handshake frame. Anything that is not a well-formed
// auth message with a non-empty token is rejected with ErrInvalidAuth.
func ParseAuth(raw []byte) (Auth, error) {
	var msg struct {
		Type  MessageType     `json:"type"`
		Token *string         `json:"token"`
		Name  json.RawMessage `json:"name"`
		Lang  json.RawMessage `json:"lang"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Auth{}, fmt.Errorf("%w: %v", ErrInvalidAuth, err)
	}
	if msg.Type != TypeAuth || msg.Token == nil {
		return Auth{}, ErrInvalidAuth
	}
	return Auth{
		Type:  TypeAuth,
		Token: *msg.Token,
		Name:  looseString(msg.Name),
		Lang:  looseString(msg.Lang),
	}, nil
}

// ParseClientMessage decodes a post-handshake frame into Status or Speech.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeStatus:
		var msg Status
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeSpeech:
		var msg Speech
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.From = ""
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func NewSpeech(text, from string) Speech {
	return Speech{Type: TypeSpeech, Text: text, From: from}
}

func NewPresence(users []string) Presence {
	if users == nil {
		users = []string{}
	}
	return Presence{Type: TypePresence, Users: users}
}

// looseString accepts JSON strings as-is and renders other scalars as text,
// so {"name": 42} becomes "42". null and absent fields are empty.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	v := strings.TrimSpace(string(raw))
	if v == "null" {
		return ""
	}
	return v
}
