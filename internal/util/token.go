package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// ResetTokenBytes is the entropy of a reset token: 32 bytes, 64 hex chars.
const ResetTokenBytes = 32

// GenerateResetToken returns a fresh reset token and the digest that is
// persisted in its place.
func GenerateResetToken() (token, hash string, err error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken is the SHA-256 hex digest stored in place of a bearer secret,
// either a reset token or a session JWT.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ResetTokenMatches compares the digest of a submitted token with a stored
// digest in constant time.
func ResetTokenMatches(token, storedHash string) bool {
	if token == "" || storedHash == "" {
		return false
	}
	candidate := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}
