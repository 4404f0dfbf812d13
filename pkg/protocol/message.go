package protocol

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	Manifest          MessageType = "MANIFEST"
	RequestFile       MessageType = "REQUEST_FILE"
	StartFile         MessageType = "START_FILE"
	EndFile           MessageType = "END_FILE"
	VerifyPassword    MessageType = "VERIFY_PASSWORD"
	PasswordCorrect   MessageType = "PASSWORD_CORRECT"
	PasswordIncorrect MessageType = "PASSWORD_INCORRECT"
	Text              MessageType = "TEXT"
	Ping              MessageType = "PING"
	Pong              MessageType = "PONG"
	Nudge             MessageType = "NUDGE"
	Error             MessageType = "ERROR"
)

// Known reports whether t is part of the control vocabulary.
func (t MessageType) Known() bool {
	switch t {
	case Manifest, RequestFile, StartFile, EndFile, VerifyPassword, PasswordCorrect,
		PasswordIncorrect, Text, Ping, Pong, Nudge, Error:
		return true
	}
	return false
}

// Message is a control message. Payload stays raw until the handler for
// Type decodes it into the matching payload struct.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FileMeta describes one offered file. It is created once when the file is
// added to a catalogue and never changes afterwards.
type FileMeta struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"type"`
}

type ManifestPayload struct {
	Locked bool       `json:"locked"`
	Files  []FileMeta `json:"files,omitempty"`
}

// MarshalJSON writes files exactly when the manifest is unlocked, as an empty
// list for an empty catalogue.
func (m ManifestPayload) MarshalJSON() ([]byte, error) {
	if m.Locked {
		return json.Marshal(struct {
			Locked bool `json:"locked"`
		}{true})
	}
	files := m.Files
	if files == nil {
		files = []FileMeta{}
	}
	return json.Marshal(struct {
		Locked bool       `json:"locked"`
		Files  []FileMeta `json:"files"`
	}{false, files})
}

type RequestFilePayload struct {
	FileID string `json:"fileId"`
}

type StartFilePayload = FileMeta

type EndFilePayload struct {
	FileID string `json:"fileId"`
}

type VerifyPasswordPayload struct {
	Password string `json:"password"`
}

type TextPayload struct {
	Text string `json:"text"`
}

// PingPayload carries the sender's clock in unix milliseconds. PONG echoes it unchanged.
type PingPayload struct {
	TS int64 `json:"ts"`
}

// Error codes carried by ERROR messages.
const (
	CodeNotFound      = "not_found"
	CodeQuotaExceeded = "quota_exceeded"
	CodeExpired       = "expired"
	CodeLocked        = "locked"
	CodeBusy          = "busy"
	// the host could not finish sending the file
	CodeFailed        = "failed"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	FileID  string `json:"fileId,omitempty"`
}

// NewMessage builds a control message with payload marshalled to JSON.
// A nil payload produces a message without a payload field.
func NewMessage(t MessageType, payload any) (*Message, error) {
	msg := &Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	msg.Payload = raw
	return msg, nil
}

// DecodePayload unmarshals the payload of msg into dst.
func DecodePayload(msg *Message, dst any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, msg.Type, err)
	}
	return nil
}
