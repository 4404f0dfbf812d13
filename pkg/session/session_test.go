package session

import (
	"strings"
	"testing"
	"time"

	"github.com/rescp17/nwshare/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(CodeAlphabet, r), "unexpected rune %q", r)
		}
		assert.True(t, ValidCode(code))
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("Ab3xYz"))
	assert.False(t, ValidCode("Ab3xY"), "too short")
	assert.False(t, ValidCode("Ab3xY0"), "0 is not in the alphabet")
	assert.False(t, ValidCode(""))
}

func TestPeerIDRoundTrip(t *testing.T) {
	id := PeerID("Ab3xYz")
	assert.Equal(t, "nwshare-Ab3xYz", id)

	code, ok := CodeFromPeerID(id)
	assert.True(t, ok)
	assert.Equal(t, "Ab3xYz", code)

	_, ok = CodeFromPeerID("other-Ab3xYz")
	assert.False(t, ok)
}

var files = []protocol.FileMeta{
	{ID: "1", Name: "a.txt", Size: 3, MimeType: "text/plain"},
	{ID: "2", Name: "b.png", Size: 9, MimeType: "image/png"},
}

// Scenario D: wrong then right password.
func TestGate_PasswordFlow(t *testing.T) {
	g := NewGate("secret")
	require.True(t, g.Locked())

	m := g.ManifestFor("c1", files)
	assert.True(t, m.Locked)
	assert.Nil(t, m.Files, "a locked manifest never carries files")

	assert.ErrorIs(t, g.Verify("c1", "guess"), ErrAuthFailed)
	assert.False(t, g.Unlocked("c1"))

	require.NoError(t, g.Verify("c1", "secret"))
	m = g.ManifestFor("c1", files)
	assert.False(t, m.Locked)
	assert.Equal(t, files, m.Files)

	// unlock state is per connection
	assert.True(t, g.ManifestFor("c2", files).Locked)

	g.Forget("c1")
	assert.False(t, g.Unlocked("c1"))
}

func TestGate_Open(t *testing.T) {
	g := NewGate("")
	assert.False(t, g.Locked())
	assert.True(t, g.Unlocked("any"))
	assert.NoError(t, g.Verify("any", "whatever"))

	m := g.ManifestFor("any", files)
	assert.False(t, m.Locked)
	assert.Len(t, m.Files, 2)
}

// Scenario C: limit of one download.
func TestQuota_LimitReached(t *testing.T) {
	q := NewQuota(Config{MaxDownloads: 1})
	assert.NoError(t, q.Check())

	count, exhausted := q.RecordDownload("1", 3)
	assert.Equal(t, 1, count)
	assert.True(t, exhausted)
	assert.ErrorIs(t, q.Check(), ErrQuotaExceeded)
	assert.Equal(t, int64(3), q.BytesSent())
	assert.Equal(t, 1, q.FileStats("1").Downloads)
}

func TestQuota_Unlimited(t *testing.T) {
	q := NewQuota(Config{})
	for i := 0; i < 100; i++ {
		_, exhausted := q.RecordDownload("1", 1)
		assert.False(t, exhausted)
	}
	assert.NoError(t, q.Check())
	assert.Equal(t, time.Duration(-1), q.Remaining())
}

func TestQuota_Expiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	q := NewQuota(Config{ExpiresAt: now.Add(time.Minute)})
	q.now = func() time.Time { return now }

	assert.False(t, q.Expired())
	assert.Equal(t, time.Minute, q.Remaining())

	now = now.Add(time.Minute)
	assert.True(t, q.Expired())
	assert.ErrorIs(t, q.Check(), ErrExpired)
	assert.Equal(t, time.Duration(0), q.Remaining())
}

func TestConfig(t *testing.T) {
	cfg := NewConfig("pw", time.Hour, 2)
	assert.True(t, cfg.Locked())
	assert.False(t, cfg.ExpiresAt.IsZero())
	assert.NoError(t, cfg.Validate())

	never := NewConfig("", 0, 0)
	assert.False(t, never.Locked())
	assert.True(t, never.ExpiresAt.IsZero())

	assert.Error(t, Config{MaxDownloads: -1}.Validate())
}
