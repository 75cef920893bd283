package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Endpoint is the dialable address of one data-center.
type Endpoint struct {
	DC   int
	Addr string
}

// AuthKey authenticates a transport connection to a single data-center.
// Keys are derived per (session, data-center) pair and never change during
// the life of a session.
type AuthKey []byte

func (k AuthKey) IsZero() bool {
	return len(k) == 0
}

// Digest is the proof a client presents when binding an already known key to
// a fresh connection. The raw key never crosses the wire again after import.
func (k AuthKey) Digest() string {
	sum := sha256.Sum256(k)
	return hex.EncodeToString(sum[:])
}

// AuthTicket is a short-lived authorization exported from the primary
// session, redeemable exactly once per connection on the target data-center.
type AuthTicket struct {
	TargetDC int    `json:"target_dc"`
	Token    string `json:"token"`
}
