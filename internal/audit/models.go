// package audit holds the append-only, hash-chained trail of draw outcomes.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is one immutable audit record. Hash covers the canonical payload
// plus the previous event's hash, so the log forms a verifiable chain.
type Event struct {
	ID        string      `json:"id,omitempty"`
	EventType string      `json:"eventType"`
	Payload   interface{} `json:"payload"`
	Actor     string      `json:"actor,omitempty"`
	PrevHash  string      `json:"prevHash,omitempty"`
	Hash      string      `json:"hash,omitempty"`
	Ts        time.Time   `json:"ts"`
	Metadata  interface{} `json:"metadata,omitempty"`
}

// ErrNotFound is returned when a requested audit record cannot be located.
var ErrNotFound = errors.New("not found")

// NewUUID returns a freshly-generated UUID string.
func NewUUID() string {
	return uuid.New().String()
}

// HashBytes computes the SHA-256 digest bytes for input data.
func HashBytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// HashHex returns the hex-encoded SHA-256 of the input bytes.
func HashHex(b []byte) string {
	return hex.EncodeToString(HashBytes(b))
}
