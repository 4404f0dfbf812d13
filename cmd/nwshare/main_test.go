package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rescp17/nwshare/api"
	"github.com/rescp17/nwshare/pkg/discovery"
	"github.com/rescp17/nwshare/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	results []discovery.DiscoveryResult
}

func (f *fakeAdapter) Announce(ctx context.Context, _ discovery.ServiceInfo) error {
	<-ctx.Done()
	return nil
}

func (f *fakeAdapter) Discover(ctx context.Context, _ string) <-chan discovery.DiscoveryResult {
	ch := make(chan discovery.DiscoveryResult, len(f.results))
	for _, r := range f.results {
		ch <- r
	}
	close(ch)
	return ch
}

func TestSetupLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nwshare.log")
	require.NoError(t, setupLogger(path, "debug"))
	assert.Error(t, setupLogger(path, "loud"))
}

func TestRunDiscover(t *testing.T) {
	ok := &fakeAdapter{results: []discovery.DiscoveryResult{
		{Services: []discovery.ServiceInfo{{Name: "laptop", Code: "Qm7kTp"}}},
	}}
	assert.NoError(t, runDiscover(context.Background(), ok))

	failing := &fakeAdapter{results: []discovery.DiscoveryResult{{Error: errors.New("no multicast")}}}
	assert.EqualError(t, runDiscover(context.Background(), failing), "no multicast")
}

func TestRegisterSession(t *testing.T) {
	hub := api.NewHub(nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	sig, err := registerSession(context.Background(), srv.URL)
	require.NoError(t, err)
	defer sig.Close()

	code, ok := session.CodeFromPeerID(sig.LocalID())
	require.True(t, ok)
	assert.True(t, session.ValidCode(code))
	assert.True(t, strings.HasPrefix(sig.LocalID(), session.PeerIDPrefix))
	assert.Equal(t, []string{sig.LocalID()}, hub.Peers())
}
