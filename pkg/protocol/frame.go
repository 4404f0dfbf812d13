package protocol

import (
	"errors"
	"fmt"
)

// FrameKind is the leading tag byte of every frame on the data channel.
type FrameKind byte

const (
	KindControl FrameKind = 0x01
	KindChunk   FrameKind = 0x02
)

func (k FrameKind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindChunk:
		return "chunk"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(k))
	}
}

var (
	ErrUnknownFrame = errors.New("unknown frame")
	ErrMalformed    = errors.New("malformed control message")
)

// Frame is a classified inbound frame. Exactly one of Message and Chunk is set.
type Frame struct {
	Kind    FrameKind
	Message *Message
	Chunk   []byte
}

// Classify decides the frame kind from the tag byte alone. Chunk bodies are
// returned as-is and never inspected.
func Classify(codec Codec, raw []byte) (*Frame, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrUnknownFrame)
	}
	switch kind := FrameKind(raw[0]); kind {
	case KindChunk:
		return &Frame{Kind: kind, Chunk: raw[1:]}, nil
	case KindControl:
		msg, err := codec.Unmarshal(raw[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &Frame{Kind: kind, Message: msg}, nil
	default:
		return nil, fmt.Errorf("%w: tag 0x%02x", ErrUnknownFrame, raw[0])
	}
}

// EncodeControl serializes msg into a tagged control frame.
func EncodeControl(codec Codec, msg *Message) ([]byte, error) {
	body, err := codec.Marshal(msg)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, byte(KindControl))
	return append(frame, body...), nil
}

// EncodeChunk copies data into a tagged chunk frame.
func EncodeChunk(data []byte) []byte {
	frame := make([]byte, len(data)+1)
	frame[0] = byte(KindChunk)
	copy(frame[1:], data)
	return frame
}
