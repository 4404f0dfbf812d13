package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)
	return hub, srv.URL
}

func dial(t *testing.T, base, id string) *WSSignaler {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Dial(ctx, base, id, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func next(t *testing.T, s *WSSignaler) Envelope {
	t.Helper()
	select {
	case env, ok := <-s.Incoming():
		require.True(t, ok, "signaler closed")
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func TestSignalURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://example.com", "ws://example.com/ws?id=a"},
		{"https://example.com/", "wss://example.com/ws?id=a"},
		{"ws://127.0.0.1:9000/signal", "ws://127.0.0.1:9000/signal/ws?id=a"},
		{"127.0.0.1:9000", "ws://127.0.0.1:9000/ws?id=a"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := SignalURL(tt.base, "a")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SignalURL("ftp://example.com", "a")
	assert.Error(t, err)
}

func TestHubRelaysBetweenPeers(t *testing.T) {
	hub, base := startHub(t)
	alice := dial(t, base, "alice")
	bob := dial(t, base, "bob")
	require.Eventually(t, func() bool { return len(hub.Peers()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice", "bob"}, hub.Peers())

	env, err := NewEnvelope(SignalOffer, "bob", "conn-1", map[string]string{"sdp": "v=0"})
	require.NoError(t, err)
	require.NoError(t, alice.Send(env))

	got := next(t, bob)
	assert.Equal(t, SignalOffer, got.Type)
	assert.Equal(t, "alice", got.From)
	assert.Equal(t, "conn-1", got.ConnID)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "v=0", payload["sdp"])
}

func TestHubReportsUnavailablePeer(t *testing.T) {
	_, base := startHub(t)
	alice := dial(t, base, "alice")

	env, err := NewEnvelope(SignalOffer, "nobody", "conn-2", nil)
	require.NoError(t, err)
	require.NoError(t, alice.Send(env))

	got := next(t, alice)
	assert.Equal(t, SignalUnavailable, got.Type)
	assert.Equal(t, "nobody", got.From)
	assert.Equal(t, "conn-2", got.ConnID)
}

func TestHubRejectsDuplicateID(t *testing.T) {
	_, base := startHub(t)
	dial(t, base, "alice")

	_, err := Dial(context.Background(), base, "alice", nil)
	assert.ErrorIs(t, err, ErrIDTaken)

	_, err = Dial(context.Background(), base, "", nil)
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestHubFreesIDOnDisconnect(t *testing.T) {
	hub, base := startHub(t)
	s := dial(t, base, "alice")
	require.Eventually(t, func() bool { return len(hub.Peers()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(Envelope{To: "x"}), ErrSignalerClosed)
	require.Eventually(t, func() bool { return len(hub.Peers()) == 0 }, 2*time.Second, 10*time.Millisecond)

	dial(t, base, "alice")
}

func TestHealth(t *testing.T) {
	_, base := startHub(t)
	resp, err := http.Get(base + PathHealth)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}
