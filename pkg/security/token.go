package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// MinTokenBytes is the smallest entropy accepted for bearer-style tokens.
const MinTokenBytes = 16

// RandomToken returns n random bytes encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	if n < MinTokenBytes {
		return "", fmt.Errorf("token needs at least %d bytes, got %d", MinTokenBytes, n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
