package session

import (
	"errors"
	"sync"

	"github.com/rescp17/nwshare/pkg/crypto"
	"github.com/rescp17/nwshare/pkg/protocol"
)

var (
	ErrAuthFailed    = errors.New("incorrect password")
	ErrQuotaExceeded = errors.New("download limit reached")
	ErrExpired       = errors.New("session expired")
)

// Gate hides the file list behind a shared password, tracked per connection.
//
// This is a demo-grade gate: the password travels in the clear inside the
// encrypted channel and is compared as plain text. There is no hashing, no
// lockout and no limit on attempts.
type Gate struct {
	password string

	mu       sync.Mutex
	unlocked map[string]bool
}

func NewGate(password string) *Gate {
	return &Gate{password: password, unlocked: make(map[string]bool)}
}

func (g *Gate) Locked() bool {
	return g.password != ""
}

// Unlocked reports whether connID may see the manifest and request files.
func (g *Gate) Unlocked(connID string) bool {
	if !g.Locked() {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked[connID]
}

// ManifestFor builds the manifest connID is allowed to see.
func (g *Gate) ManifestFor(connID string, files []protocol.FileMeta) protocol.ManifestPayload {
	if !g.Unlocked(connID) {
		return protocol.ManifestPayload{Locked: true}
	}
	out := make([]protocol.FileMeta, len(files))
	copy(out, files)
	return protocol.ManifestPayload{Locked: false, Files: out}
}

// Verify unlocks connID when password matches. Retries are unlimited.
func (g *Gate) Verify(connID, password string) error {
	if !g.Locked() {
		return nil
	}
	if !crypto.SecureCompare(g.password, password) {
		return ErrAuthFailed
	}
	g.mu.Lock()
	g.unlocked[connID] = true
	g.mu.Unlock()
	return nil
}

// Forget drops connID's unlock state when it disconnects.
func (g *Gate) Forget(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.unlocked, connID)
}
