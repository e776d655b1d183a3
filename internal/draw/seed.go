package draw

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// SeedSource produces the random seed for one draw execution. Production
// uses CryptoSeed; tests inject a fixed source for reproducibility. A seed
// is never reused across draws and never derived from guessable state.
type SeedSource func() (uint64, error)

// CryptoSeed reads a fresh 64-bit seed from the operating system CSPRNG.
func CryptoSeed() (uint64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// FixedSeed returns a SeedSource that always yields the given seed.
func FixedSeed(seed uint64) SeedSource {
	return func() (uint64, error) { return seed, nil }
}
