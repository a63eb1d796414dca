package utils // package utils provides helper functions for token generation and hashing

import (
	"crypto/rand"  // secure random number generation
	"encoding/hex" // hex encoding of random bytes
)

// NewSessionToken returns an opaque bearer token for a session: 48
// bytes of cryptographically secure random data encoded as 96 hex
// characters.  The raw token is handed to the client and stored as-is;
// expiry is the only invalidation mechanism.
func NewSessionToken() (string, error) {
	return randomHex(48)
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.  If the random number
// generator fails, an error is returned.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
