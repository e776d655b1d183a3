package audit

import (
	"fmt"
)

// VerifyChain walks events in chronological order and checks that every
// hash equals sha256(canonical(payload) || prevHashBytes) and that each
// prevHash links to the preceding event. Returns nil on success or an error
// naming the first broken link.
func VerifyChain(events []*Event) error {
	prev := ""
	for i, ev := range events {
		if ev.PrevHash != prev {
			return fmt.Errorf("event %s (index %d): prevHash %q does not match chain head %q", ev.ID, i, ev.PrevHash, prev)
		}
		want, err := chainHash(ev.Payload, ev.PrevHash)
		if err != nil {
			return fmt.Errorf("event %s (index %d): %w", ev.ID, i, err)
		}
		if ev.Hash != want {
			return fmt.Errorf("event %s (index %d): hash mismatch, stored %q computed %q", ev.ID, i, ev.Hash, want)
		}
		prev = ev.Hash
	}
	return nil
}
