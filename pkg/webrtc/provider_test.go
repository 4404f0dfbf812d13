package webrtc

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rescp17/nwshare/api"
	"github.com/rescp17/nwshare/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lanConfig() Config {
	return Config{LANOnly: true, DisableMDNS: true}
}

func newTestProvider(t *testing.T, base, id string) *Provider {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sig, err := api.Dial(ctx, base, id, nil)
	require.NoError(t, err)
	p := NewProvider(sig, lanConfig())
	t.Cleanup(func() { p.Close() })
	return p
}

func startRendezvous(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(api.NewHub(nil).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestNewWebRTCAPI_ICEServers(t *testing.T) {
	assert.Equal(t, DefaultICEServers, NewWebRTCAPI(Config{}).servers)
	assert.Empty(t, NewWebRTCAPI(Config{LANOnly: true}).servers)
}

func TestConnectUnknownPeer(t *testing.T) {
	base := startRendezvous(t)
	p := newTestProvider(t, base, "guest")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := p.Connect(ctx, "nobody")
	assert.ErrorIs(t, err, ErrPeerUnavailable)
}

func TestAcceptAfterClose(t *testing.T) {
	base := startRendezvous(t)
	p := newTestProvider(t, base, "host")
	require.NoError(t, p.Close())

	_, err := p.Accept(context.Background())
	assert.ErrorIs(t, err, registry.ErrProviderClosed)
	_, err = p.Connect(context.Background(), "x")
	assert.ErrorIs(t, err, registry.ErrProviderClosed)
}

func TestLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real ICE connections")
	}
	base := startRendezvous(t)
	host := newTestProvider(t, base, "host")
	guest := newTestProvider(t, base, "guest")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	accepted := make(chan registry.Link, 1)
	go func() {
		l, err := host.Accept(ctx)
		if err == nil {
			accepted <- l
		}
	}()

	out, err := guest.Connect(ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, "host", out.PeerID())

	var in registry.Link
	select {
	case in = <-accepted:
	case <-ctx.Done():
		t.Fatal("host never accepted")
	}
	assert.Equal(t, out.ID(), in.ID())
	assert.Equal(t, "guest", in.PeerID())

	frames := make([][]byte, 50)
	for i := range frames {
		frames[i] = bytes.Repeat([]byte{byte(i)}, 16*1024+1)
		require.NoError(t, out.Send(frames[i]))
	}
	for i := range frames {
		select {
		case got := <-in.Recv():
			require.Equal(t, frames[i], got, "frame %d", i)
		case <-ctx.Done():
			t.Fatalf("frame %d never arrived", i)
		}
	}
	require.Eventually(t, func() bool { return out.BufferedAmount() == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, in.Send([]byte{0x01, '{', '}'}))
	select {
	case got := <-out.Recv():
		assert.Equal(t, []byte{0x01, '{', '}'}, got)
	case <-ctx.Done():
		t.Fatal("reply never arrived")
	}

	out.Close()
	select {
	case <-in.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("remote close not observed")
	}
	assert.ErrorIs(t, in.Send([]byte{0x02}), registry.ErrTransportClosed)
}
