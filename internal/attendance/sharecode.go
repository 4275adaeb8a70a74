package attendance

import (
	"crypto/rand"
	"fmt"
)

// Share codes are 6 characters over A-Z0-9. Uniqueness is enforced by the
// store's unique index, not by pre-checking; session creation retries with a
// fresh code when the insert loses.
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// NewShareCode draws a session code from crypto/rand.
func NewShareCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("share code entropy: %w", err)
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}
