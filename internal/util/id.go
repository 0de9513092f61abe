package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 24-character hex document id.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// IsValidID reports whether s is a well-formed document id.
// Malformed ids are rejected before any lookup so that callers can
// distinguish "bad request" from "not found".
func IsValidID(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
