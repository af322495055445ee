// Package canon provides deterministic hashing of JSON-like values.
//
// Values are serialized to RFC 8785 canonical JSON before hashing, so the
// digest is stable under any permutation of object key order.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Hash returns the SHA-256 hex digest of the canonical JSON form of v.
// v must be JSON-serializable; anything else is a caller error.
func Hash(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return HashRaw(b)
}

// HashRaw canonicalizes pre-encoded JSON and returns its SHA-256 hex digest.
func HashRaw(raw json.RawMessage) (string, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
