package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// RawTokenBytes is the entropy of a raw token in bytes (256 bits).
	RawTokenBytes = 32
	// RawTokenLength is the length of a hex-encoded raw token.
	RawTokenLength = RawTokenBytes * 2

	// DigestPrefix tags the digest algorithm. Stored rows depend on it; do not change.
	DigestPrefix = "sha256:"
	// DigestLength is the length of a digest including DigestPrefix.
	DigestLength = len(DigestPrefix) + sha256.Size*2
)

// GenerateRawToken returns a fresh 64-character lowercase hex token read from crypto/rand.
// The raw value is handed to the caller once and must never be persisted or logged.
func GenerateRawToken() (string, error) {
	b := make([]byte, RawTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random source: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Digest returns the storage form of a raw token: DigestPrefix followed by the
// hex-encoded SHA-256 of raw. It is deterministic and one-way.
func Digest(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return DigestPrefix + hex.EncodeToString(h[:])
}

