package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeIdentifier trims and lowercases an account identifier.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// IdentityDigest returns a hex HMAC-SHA256 of value under key. With an empty
// key it degrades to a plain SHA-256 digest.
func IdentityDigest(key []byte, value string) string {
	if len(key) == 0 {
		sum := sha256.Sum256([]byte(value))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
