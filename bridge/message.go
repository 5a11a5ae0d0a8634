// Package bridge lets a freshly opened tab obtain a live access credential
// from an already-authenticated sibling tab over a same-origin broadcast
// channel, without the credential ever touching shared storage.
package bridge

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators on the wire.
const (
	typeTokenRequest = "REQUEST_TOKENS"
	typeTokenReply   = "TOKENS"
)

// Message is the sum type carried on the broadcast channel. Exactly two
// variants exist: TokenRequest and TokenReply.
type Message interface {
	messageType() string
}

// TokenRequest is broadcast by a tab that has no credential.
type TokenRequest struct {
	From string `json:"from,omitempty"`
}

func (TokenRequest) messageType() string { return typeTokenRequest }

// TokenReply is a point-to-point answer addressed to the requesting tab.
type TokenReply struct {
	To            string `json:"to,omitempty"`
	Access        string `json:"access,omitempty"`
	OrgExternalID string `json:"orgExternalId,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

func (TokenReply) messageType() string { return typeTokenReply }

type envelope struct {
	Type string `json:"type"`
	TokenRequest
	TokenReply
}

// Encode serialises a message with its type tag for transports that carry
// raw bytes.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case TokenRequest:
		return json.Marshal(envelope{Type: typeTokenRequest, TokenRequest: msg})
	case TokenReply:
		return json.Marshal(envelope{Type: typeTokenReply, TokenReply: msg})
	}
	return nil, fmt.Errorf("bridge: unknown message %T", m)
}

// Decode parses a tagged message. Unknown types are an error so transports
// surface contract drift instead of dropping frames silently.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bridge: decode: %w", err)
	}
	switch env.Type {
	case typeTokenRequest:
		return env.TokenRequest, nil
	case typeTokenReply:
		return env.TokenReply, nil
	}
	return nil, fmt.Errorf("bridge: unknown message type %q", env.Type)
}
