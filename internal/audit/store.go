package audit

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/erikldr/sortear/internal/canonical"
)

// Log is the persistence abstraction for the audit trail.
type Log interface {
	// Append canonicalizes the payload, computes the chained hash, and
	// persists the event. It fills in ID, PrevHash, Hash and Ts as needed.
	Append(ctx context.Context, ev *Event) error

	// GetEvent retrieves an event by id.
	GetEvent(ctx context.Context, id string) (*Event, error)

	// Ping validates the log is reachable.
	Ping(ctx context.Context) error
}

// chainHash computes hash = sha256(canonical(payload) || prevHashBytes).
func chainHash(payload interface{}, prevHex string) (string, error) {
	canon, err := canonical.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	concat := append([]byte(nil), canon...)
	if prevHex != "" {
		prevBytes, err := hex.DecodeString(prevHex)
		if err != nil {
			return "", fmt.Errorf("decode prev hash: %w", err)
		}
		concat = append(concat, prevBytes...)
	}
	return HashHex(concat), nil
}
