// Package auth implements API key hashing and the auth middleware.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// HashKey derives a salted, keyed digest of plaintext. HMAC-SHA-256 is used
// rather than a plain hash so the digest cannot be produced without the
// process secret, satisfying the "does not leak the plaintext by inversion"
// requirement without needing a slow password-hashing KDF — API keys are
// high-entropy random tokens, not user-chosen passwords.
func HashKey(salt, plaintext string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateKey returns a fresh random opaque API key: "sk-" followed by 32
// random bytes, hex-encoded.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk-" + hex.EncodeToString(buf), nil
}

// Last6 returns the trailing 6 characters of a hash, used for masked listing.
func Last6(hash string) string {
	if len(hash) <= 6 {
		return hash
	}
	return hash[len(hash)-6:]
}
