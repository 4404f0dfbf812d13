package session

import (
	"errors"
	"strings"
	"time"

	"github.com/rescp17/nwshare/pkg/crypto"
)

const (
	// CodeAlphabet leaves out characters that are easy to misread (0/O, 1/l/I).
	CodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"
	CodeLength   = 6
	PeerIDPrefix = "nwshare-"

	DefaultExpiry = 60 * time.Minute
)

// GenerateCode returns a fresh short code for a hosted session.
func GenerateCode() (string, error) {
	return crypto.RandomString(CodeAlphabet, CodeLength)
}

// PeerID maps a session code to the rendezvous identity of its host.
func PeerID(code string) string {
	return PeerIDPrefix + code
}

// ValidCode reports whether code could have come from GenerateCode.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(CodeAlphabet, r) {
			return false
		}
	}
	return true
}

// CodeFromPeerID reverses PeerID.
func CodeFromPeerID(id string) (string, bool) {
	if !strings.HasPrefix(id, PeerIDPrefix) {
		return "", false
	}
	return strings.TrimPrefix(id, PeerIDPrefix), true
}

// Config is the host's policy for one sharing session.
type Config struct {
	// Password gates the manifest. Empty means no gate.
	Password string `json:"password,omitempty"`
	// ExpiresAt ends the session. The zero value never expires.
	ExpiresAt time.Time `json:"expires_at"`
	// MaxDownloads ends the session after that many completed downloads. 0 is unlimited.
	MaxDownloads int `json:"max_downloads"`
}

func NewConfig(password string, expiry time.Duration, maxDownloads int) Config {
	cfg := Config{Password: password, MaxDownloads: maxDownloads}
	if expiry > 0 {
		cfg.ExpiresAt = time.Now().Add(expiry)
	}
	return cfg
}

func (c Config) Locked() bool {
	return c.Password != ""
}

func (c Config) Validate() error {
	if c.MaxDownloads < 0 {
		return errors.New("max_downloads cannot be negative")
	}
	return nil
}
