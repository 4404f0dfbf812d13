package protocol

import (
	"encoding/json"
	"fmt"
)

// Codec serializes control message bodies. Chunk frames bypass it.
type Codec interface {
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte) (*Message, error)
	Name() string
}

type JSONCodec struct{}

func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

func (j *JSONCodec) Marshal(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	return json.Marshal(msg)
}

func (j *JSONCodec) Unmarshal(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &msg, nil
}

func (j *JSONCodec) Name() string {
	return "json"
}
