package discovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionService(t *testing.T) {
	s := NewSessionService("laptop-Ab3xYz", "Ab3xYz", "ws://192.168.1.4:9000/ws", true)
	assert.Equal(t, DefaultServiceType, s.Type)
	assert.Equal(t, 9000, s.Port)

	var back ServiceInfo
	back.applyText(s.text())
	assert.Equal(t, "Ab3xYz", back.Code)
	assert.Equal(t, "ws://192.168.1.4:9000/ws", back.Rendezvous)
	assert.True(t, back.Locked)
}

func TestPortOf(t *testing.T) {
	tests := map[string]int{
		"ws://host:8080/ws": 8080,
		"wss://host/ws":     443,
		"ws://host":         80,
		"::bad":             0,
	}
	for raw, want := range tests {
		assert.Equal(t, want, portOf(raw), raw)
	}
}

func TestAnnounceAndDiscover(t *testing.T) {
	// mDNS needs a multicast-capable interface
	if testing.Short() {
		t.Skip("Skipping mDNS test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	adapter := &MDNSAdapter{}
	service := NewSessionService("test-instance", "Zz9Zz9", "ws://127.0.0.1:9000/ws", false)
	service.Type = "_nwshare-test._tcp"

	errCh := make(chan error, 1)
	go func() { errCh <- adapter.Announce(ctx, service) }()

	results := adapter.Discover(ctx, fmt.Sprintf("%s.%s.", service.Type, DefaultDomain))
	for {
		select {
		case res, ok := <-results:
			require.True(t, ok, "discovery ended before the session was seen")
			if res.Error != nil {
				t.Skipf("mDNS unavailable: %v", res.Error)
			}
			for _, s := range res.Services {
				if s.Code == "Zz9Zz9" {
					assert.Equal(t, "ws://127.0.0.1:9000/ws", s.Rendezvous)
					cancel()
					return
				}
			}
		case err := <-errCh:
			if err != nil {
				t.Skipf("mDNS unavailable: %v", err)
			}
		case <-ctx.Done():
			t.Skip("no mDNS answer on this network")
		}
	}
}
