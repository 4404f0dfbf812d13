package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlFrameRoundTrip(t *testing.T) {
	codec := NewJSONCodec()

	msg, err := NewMessage(StartFile, StartFilePayload{ID: "f1", Name: "a.txt", Size: 42, MimeType: "text/plain"})
	require.NoError(t, err)

	raw, err := EncodeControl(codec, msg)
	require.NoError(t, err)
	assert.Equal(t, byte(KindControl), raw[0])

	frame, err := Classify(codec, raw)
	require.NoError(t, err)
	require.Equal(t, KindControl, frame.Kind)
	require.NotNil(t, frame.Message)
	assert.Nil(t, frame.Chunk)
	assert.Equal(t, StartFile, frame.Message.Type)

	var meta FileMeta
	require.NoError(t, DecodePayload(frame.Message, &meta))
	assert.Equal(t, "f1", meta.ID)
	assert.Equal(t, int64(42), meta.Size)
	assert.Equal(t, "text/plain", meta.MimeType)
}

func TestWireFieldNames(t *testing.T) {
	codec := NewJSONCodec()
	msg, err := NewMessage(StartFile, FileMeta{ID: "x", Name: "n", Size: 1, MimeType: "image/png"})
	require.NoError(t, err)

	body, err := codec.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"START_FILE","payload":{"id":"x","name":"n","size":1,"type":"image/png"}}`, string(body))

	nudge, err := NewMessage(Nudge, nil)
	require.NoError(t, err)
	body, err = codec.Marshal(nudge)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"NUDGE"}`, string(body))
}

func TestManifestFilesPresentIffUnlocked(t *testing.T) {
	for _, tc := range []struct {
		name     string
		manifest ManifestPayload
		want     string
	}{
		{"unlocked empty", ManifestPayload{}, `{"locked":false,"files":[]}`},
		{"unlocked", ManifestPayload{Files: []FileMeta{{ID: "a", Name: "a.txt", Size: 1, MimeType: "text/plain"}}},
			`{"locked":false,"files":[{"id":"a","name":"a.txt","size":1,"type":"text/plain"}]}`},
		{"locked", ManifestPayload{Locked: true, Files: []FileMeta{{ID: "a"}}}, `{"locked":true}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := NewMessage(Manifest, tc.manifest)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(msg.Payload))
		})
	}
}

func TestChunkFrameIsOpaque(t *testing.T) {
	// A chunk whose body looks exactly like a control message must still be a chunk.
	body := []byte(`{"type":"END_FILE","payload":{"fileId":"f1"}}`)
	raw := EncodeChunk(body)

	frame, err := Classify(NewJSONCodec(), raw)
	require.NoError(t, err)
	assert.Equal(t, KindChunk, frame.Kind)
	assert.Nil(t, frame.Message)
	assert.True(t, bytes.Equal(body, frame.Chunk))
}

func TestEncodeChunkCopies(t *testing.T) {
	data := []byte{1, 2, 3}
	raw := EncodeChunk(data)
	data[0] = 9
	assert.Equal(t, []byte{byte(KindChunk), 1, 2, 3}, raw)
}

func TestClassifyRejects(t *testing.T) {
	codec := NewJSONCodec()
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"empty frame", nil, ErrUnknownFrame},
		{"unknown tag", []byte{0x7f, 1, 2}, ErrUnknownFrame},
		{"bad json", []byte{byte(KindControl), '{'}, ErrMalformed},
		{"missing type", []byte{byte(KindControl), '{', '}'}, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(codec, tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEmptyChunkFrame(t *testing.T) {
	frame, err := Classify(NewJSONCodec(), []byte{byte(KindChunk)})
	require.NoError(t, err)
	assert.Equal(t, KindChunk, frame.Kind)
	assert.Empty(t, frame.Chunk)
}

func TestDecodePayloadErrors(t *testing.T) {
	var p RequestFilePayload
	err := DecodePayload(&Message{Type: RequestFile}, &p)
	assert.ErrorIs(t, err, ErrMalformed)

	err = DecodePayload(&Message{Type: RequestFile, Payload: []byte(`"oops"`)}, &p)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMessageTypeKnown(t *testing.T) {
	assert.True(t, Manifest.Known())
	assert.True(t, Nudge.Known())
	assert.False(t, MessageType("BOGUS").Known())
}
