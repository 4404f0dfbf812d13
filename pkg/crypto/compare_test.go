package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureCompare(t *testing.T) {
	assert.True(t, SecureCompare("hello world", "hello world"), "Equal strings should return true")
	assert.False(t, SecureCompare("hello world", "hello world!"), "Different length strings should return false")
	assert.False(t, SecureCompare("hello world", "Hello world"), "Different content should return false")
	assert.True(t, SecureCompare("", ""), "Empty strings should return true")
	assert.False(t, SecureCompare("", "x"))
}

func TestRandomString(t *testing.T) {
	const alphabet = "ab"
	s, err := RandomString(alphabet, 64)
	require.NoError(t, err)
	assert.Len(t, s, 64)
	for _, r := range s {
		assert.True(t, strings.ContainsRune(alphabet, r))
	}

	_, err = RandomString("", 4)
	assert.Error(t, err)

	s, err = RandomString(alphabet, 0)
	require.NoError(t, err)
	assert.Empty(t, s)
}
