package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
)

// SecureCompare reports whether a and b are equal without leaking where
// they differ through timing. Length is still observable.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomString draws n characters uniformly from alphabet using crypto/rand.
func RandomString(alphabet string, n int) (string, error) {
	if alphabet == "" {
		return "", errors.New("alphabet cannot be empty")
	}
	chars := []rune(alphabet)
	max := big.NewInt(int64(len(chars)))
	out := make([]rune, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = chars[idx.Int64()]
	}
	return string(out), nil
}
