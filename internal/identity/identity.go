// Package identity turns submitted e-mail addresses into storage keys that carry no
// personal data.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize trims and lowercases email and returns the hex SHA-256 digest of the result.
// Variants of the same address that differ only in case or surrounding whitespace map
// to the same key.
func Normalize(email string) string {
	sum := sha256.Sum256([]byte(Canonical(email)))
	return hex.EncodeToString(sum[:])
}

// Canonical returns the trimmed, lowercased form of email that Normalize hashes.
func Canonical(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
