// Package api is the rendezvous service peers use to find each other and
// exchange WebRTC signaling before their data channel opens.
package api

import (
	"encoding/json"
	"errors"
)

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
	// SignalUnavailable is sent back by the hub when the addressed peer is not registered.
	SignalUnavailable SignalType = "unavailable"
)

// Envelope is one relayed signaling message. From is always set by the hub.
type Envelope struct {
	Type    SignalType      `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	ConnID  string          `json:"connId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var (
	ErrIDTaken        = errors.New("peer id already registered")
	ErrMissingID      = errors.New("peer id is required")
	ErrSignalerClosed = errors.New("signaler closed")
)

// NewEnvelope marshals payload into a fresh envelope addressed to `to`.
func NewEnvelope(t SignalType, to, connID string, payload any) (Envelope, error) {
	env := Envelope{Type: t, To: to, ConnID: connID}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return env, err
	}
	env.Payload = raw
	return env, nil
}
