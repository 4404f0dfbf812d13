package receiver_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rescp17/nwshare/internal/app"
	"github.com/rescp17/nwshare/pkg/catalog"
	"github.com/rescp17/nwshare/pkg/memconn"
	"github.com/rescp17/nwshare/pkg/protocol"
	"github.com/rescp17/nwshare/pkg/receiver"
	"github.com/rescp17/nwshare/pkg/registry"
	"github.com/rescp17/nwshare/pkg/sender"
	"github.com/rescp17/nwshare/pkg/session"
	"github.com/rescp17/nwshare/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCode = "Qm7kTp"

type host struct {
	app    *sender.App
	cancel context.CancelFunc
	done   chan error
}

func startHost(t *testing.T, net *memconn.Network, files *catalog.Catalog, cfg session.Config) *host {
	t.Helper()
	p, err := net.Provider(session.PeerID(testCode))
	require.NoError(t, err)
	tc := transfer.DefaultConfig()
	tc.RetainFor = 0
	a, err := sender.NewApp(p, files, sender.Options{
		Transfer:      tc,
		Session:       cfg,
		ProbeInterval: time.Hour,
		EndGrace:      50 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &host{app: a, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- a.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *host) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
	}
}

func newGuest(t *testing.T, net *memconn.Network, sink transfer.Sink) *receiver.App {
	t.Helper()
	p, err := net.Provider("guest-" + t.Name())
	require.NoError(t, err)
	g := receiver.NewApp(p, receiver.Options{
		Sink:             sink,
		ProgressInterval: time.Millisecond,
		ProbeInterval:    10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return g
}

func waitForManifest(t *testing.T, g *receiver.App) receiver.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return g.Snapshot().Manifest }, 2*time.Second, 2*time.Millisecond)
	return g.Snapshot()
}

func fileState(g *receiver.App, id string) receiver.FileState {
	for _, f := range g.Snapshot().Files {
		if f.Meta.ID == id {
			return f.State
		}
	}
	return ""
}

func TestConnect_InvalidCode(t *testing.T) {
	net := memconn.NewNetwork(memconn.Options{})
	g := newGuest(t, net, nil)

	err := g.Connect(context.Background(), "0OlI1!")
	assert.ErrorIs(t, err, receiver.ErrInvalidCode)
	assert.Equal(t, app.PhaseDisconnected, g.Phase())
}

func TestConnect_HostMissingThenRetry(t *testing.T) {
	net := memconn.NewNetwork(memconn.Options{})
	g := newGuest(t, net, nil)

	err := g.Connect(context.Background(), testCode)
	var cerr *registry.ConnectivityError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, session.PeerID(testCode), cerr.PeerID)
	assert.Equal(t, app.PhaseDisconnected, g.Phase())
	assert.Error(t, g.Snapshot().Err)

	startHost(t, net, catalog.New(), session.Config{})
	require.NoError(t, g.Connect(context.Background(), testCode))
	assert.Equal(t, app.PhaseConnected, g.Phase())
	assert.NoError(t, g.Snapshot().Err)
	assert.Equal(t, session.PeerID(testCode), g.Snapshot().HostID)

	// already connected
	assert.Error(t, g.Connect(context.Background(), testCode))
}

// Scenarios A and B end to end, plus a file larger than the queue.
func TestDownloadAll(t *testing.T) {
	net := memconn.NewNetwork(memconn.Options{})
	files := catalog.New()
	empty := files.AddBytes("empty.txt", nil, "text/plain")
	forty := bytes.Repeat([]byte("x"), 40*1024)
	mid := files.AddBytes("forty.bin", forty, "application/octet-stream")
	big := bytes.Repeat([]byte("0123456789abcdef"), 100_000)
	large := files.AddBytes("large.bin", big, "application/octet-stream")
	h := startHost(t, net, files, session.Config{})

	dir := t.TempDir()
	sink, err := transfer.NewDirSink(dir)
	require.NoError(t, err)
	g := newGuest(t, net, sink)

	require.NoError(t, g.Connect(context.Background(), testCode))
	snap := waitForManifest(t, g)
	assert.False(t, snap.Locked)
	require.Len(t, snap.Files, 3)

	n, err := g.DownloadAll()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Eventually(t, func() bool {
		for _, f := range g.Snapshot().Files {
			if f.State != receiver.FileDone {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)

	for _, tc := range []struct {
		meta protocol.FileMeta
		want []byte
	}{{empty, nil}, {mid, forty}, {large, big}} {
		got, err := os.ReadFile(filepath.Join(dir, tc.meta.Name))
		require.NoError(t, err, tc.meta.Name)
		assert.True(t, bytes.Equal(tc.want, got), tc.meta.Name)
	}

	// completed files are not queued again
	n, err = g.DownloadAll()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Eventually(t, func() bool { return h.app.Snapshot().Downloads == 3 }, time.Second, 2*time.Millisecond)
}

func TestRequestFile_Validation(t *testing.T) {
	net := memconn.NewNetwork(memconn.Options{})
	files := catalog.New()
	meta := files.AddBytes("a.txt", []byte("a"), "text/plain")
	startHost(t, net, files, session.Config{})
	g := newGuest(t, net, nil)

	_, err := g.RequestFile(meta.ID)
	assert.ErrorIs(t, err, receiver.ErrNotConnected)

	require.NoError(t, g.Connect(context.Background(), testCode))
	waitForManifest(t, g)

	_, err = g.RequestFile("nope")
	assert.ErrorIs(t, err, receiver.ErrUnknownFile)

	queued, err := g.RequestFile(meta.ID)
	require.NoError(t, err)
	assert.True(t, queued)
	require.Eventually(t, func() bool { return fileState(g, meta.ID) == receiver.FileDone }, 2*time.Second, 2*time.Millisecond)

	queued, err = g.RequestFile(meta.ID)
	require.NoError(t, err)
	assert.False(t, queued, "finished files are not requested twice")
}

// Scenario D from the guest's side.
func TestPasswordUnlock(t *testing.T) {
	net := memconn.NewNetwork(memconn.Options{})
	files := catalog.New()
	meta := files.AddBytes("locked.txt", []byte("classified"), "text/plain")
	startHost(t, net, files, session.Config{Password: "open sesame"})

	sink := transfer.NewMemorySink()
	g := newGuest(t, net, sink)
	require.NoError(t, g.Connect(context.Background(), testCode))

	snap := waitForManifest(t, g)
	assert.True(t, snap.Locked)
	assert.Empty(t, snap.Files)
	_, err := g.DownloadAll()
	assert.ErrorIs(t, err, receiver.ErrLocked)

	require.NoError(t, g.VerifyPassword("guess"))
	require.Eventually(t, func() bool { return g.Snapshot().PasswordRejected }, time.Second, 2*time.Millisecond)
	assert.True(t, g.Snapshot().Locked)

	require.NoError(t, g.VerifyPassword("open sesame"))
	require.Eventually(t, func() bool { return !g.Snapshot().Locked }, time.Second, 2*time.Millisecond)
	snap = g.Snapshot()
	assert.False(t, snap.PasswordRejected)
	require.Len(t, snap.Files, 1)

	_, err = g.RequestFile(meta.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		b, ok := sink.Bytes(meta.ID)
		return ok && string(b) == "classified"
	}, 2*time.Second, 2*time.Millisecond)
}

// Scenario C from the guest's side: the second file is refused and the
// host goes away.
func TestDownloadLimit(t *testing.T) {
	net := memconn.NewNetwork(memconn.Options{})
	files := catalog.New()
	first := files.AddBytes("one.txt", []byte("1"), "text/plain")
	second := files.AddBytes("two.txt", []byte("2"), "text/plain")
	h := startHost(t, net, files, session.Config{MaxDownloads: 1})

	g := newGuest(t, net, nil)
	require.NoError(t, g.Connect(context.Background(), testCode))
	waitForManifest(t, g)

	_, err := g.DownloadAll()
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fileState(g, second.ID) == receiver.FileFailed }, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, receiver.FileDone, fileState(g, first.ID))

	for _, f := range g.Snapshot().Files {
		if f.Meta.ID == second.ID {
			var herr *receiver.HostError
			require.True(t, errors.As(f.Err, &herr))
			assert.Equal(t, protocol.CodeQuotaExceeded, herr.Code)
		}
	}

	select {
	case <-h.app.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("host session did not end")
	}
	require.Eventually(t, func() bool { return g.Phase() == app.PhaseDisconnected }, time.Second, 2*time.Millisecond)
	assert.ErrorIs(t, g.Snapshot().Err, registry.ErrTransportClosed)
}

func TestLinkLossFailsDownload(t *testing.T) {
	net := memconn.NewNetwork(memconn.Options{FrameDelay: time.Millisecond})
	files := catalog.New()
	meta := files.AddBytes("slow.bin", bytes.Repeat([]byte{7}, 2*1024*1024), "")
	h := startHost(t, net, files, session.Config{})

	g := newGuest(t, net, nil)
	require.NoError(t, g.Connect(context.Background(), testCode))
	waitForManifest(t, g)
	_, err := g.RequestFile(meta.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fileState(g, meta.ID) == receiver.FileDownloading }, 2*time.Second, time.Millisecond)
	guests := h.app.Snapshot().Guests
	require.Len(t, guests, 1)
	link, ok := net.Outbound(guests[0].ConnID, session.PeerID(testCode))
	require.True(t, ok)
	require.NoError(t, link.Close())

	require.Eventually(t, func() bool { return g.Phase() == app.PhaseDisconnected }, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, receiver.FileFailed, fileState(g, meta.ID))
	assert.ErrorIs(t, g.Snapshot().Err, registry.ErrTransportClosed)

	// the host keeps running for other guests
	require.Eventually(t, func() bool { return len(h.app.Snapshot().Guests) == 0 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, session.EndReasonNone, h.app.EndReason())
}

// Files that vanish or shrink on the host after being shared fail on the
// guest without holding up the rest of the queue.
func TestHostReadFailureFreesQueue(t *testing.T) {
	dir := t.TempDir()
	gonePath := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(gonePath, []byte("bye"), 0o644))
	shortPath := filepath.Join(dir, "short.bin")
	require.NoError(t, os.WriteFile(shortPath, bytes.Repeat([]byte{1}, 40*1024), 0o644))

	files := catalog.New()
	added, err := files.AddPath(gonePath)
	require.NoError(t, err)
	require.Len(t, added, 1)
	gone := added[0]
	added, err = files.AddPath(shortPath)
	require.NoError(t, err)
	require.Len(t, added, 1)
	short := added[0]
	other := files.AddBytes("other.txt", []byte("still here"), "text/plain")

	require.NoError(t, os.Remove(gonePath))
	require.NoError(t, os.Truncate(shortPath, 20*1024))

	net := memconn.NewNetwork(memconn.Options{})
	startHost(t, net, files, session.Config{})
	sink := transfer.NewMemorySink()
	g := newGuest(t, net, sink)
	require.NoError(t, g.Connect(context.Background(), testCode))
	waitForManifest(t, g)

	n, err := g.DownloadAll()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Eventually(t, func() bool {
		return fileState(g, other.ID) == receiver.FileDone &&
			fileState(g, gone.ID) == receiver.FileFailed &&
			fileState(g, short.ID) == receiver.FileFailed
	}, 3*time.Second, 2*time.Millisecond)

	b, ok := sink.Bytes(other.ID)
	require.True(t, ok)
	assert.Equal(t, "still here", string(b))
	_, ok = sink.Bytes(short.ID)
	assert.False(t, ok, "partial file is discarded")

	for _, f := range g.Snapshot().Files {
		if f.Meta.ID == other.ID {
			continue
		}
		var herr *receiver.HostError
		require.True(t, errors.As(f.Err, &herr), f.Meta.Name)
		assert.Equal(t, protocol.CodeFailed, herr.Code, f.Meta.Name)
	}

	// a failed file can be asked for again
	queued, err := g.RequestFile(gone.ID)
	require.NoError(t, err)
	assert.True(t, queued)
	require.Eventually(t, func() bool { return fileState(g, gone.ID) == receiver.FileFailed }, 2*time.Second, 2*time.Millisecond)
}

func TestChatAndLatency(t *testing.T) {
	net := memconn.NewNetwork(memconn.Options{})
	h := startHost(t, net, catalog.New(), session.Config{})
	g := newGuest(t, net, nil)
	require.NoError(t, g.Connect(context.Background(), testCode))
	waitForManifest(t, g)

	require.NoError(t, g.SendText("hi host"))
	require.Eventually(t, func() bool { return len(h.app.Snapshot().Chat) == 1 }, time.Second, 2*time.Millisecond)

	h.app.SendText("hi guest")
	require.Eventually(t, func() bool { return len(g.Snapshot().Chat) == 2 }, time.Second, 2*time.Millisecond)
	chat := g.Snapshot().Chat
	assert.Equal(t, "hi host", chat[0].Text)
	assert.Equal(t, "hi guest", chat[1].Text)

	require.Eventually(t, func() bool { return g.Snapshot().HasLatency }, time.Second, 5*time.Millisecond)
	require.NoError(t, g.Nudge())
}
