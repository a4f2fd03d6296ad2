package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize collapses a raw lookup input (email address or LinkedIn profile
// URL) into the canonical identity string: trimmed and lower-cased, nothing
// else. " John@Example.com " and "john@example.com" are the same identity.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// HashIdentity derives the cache key for a normalized identity. The digest is
// a lookup key, not a security boundary, but it must be stable forever: the
// same input has to produce the same key across releases.
func HashIdentity(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// IdentityKey is the convenience composition of Normalize and HashIdentity.
func IdentityKey(raw string) string {
	return HashIdentity(Normalize(raw))
}
