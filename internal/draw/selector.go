package draw

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// Select draws n distinct participants from the ordered eligible set using a
// partial Fisher–Yates shuffle seeded by seed. Every n-subset is equally
// likely and so is every ordering within it, so the prefix doubles as the
// prize ranking. Replaying with the same eligible ordering and seed yields
// the identical result.
//
// n == 0 returns an empty sequence. n > len(eligible) returns an
// InsufficientEligibleError without selecting anyone.
func Select(eligible []uuid.UUID, n int, seed uint64) ([]uuid.UUID, error) {
	if n < 0 || n > len(eligible) {
		return nil, &InsufficientEligibleError{Requested: n, Eligible: len(eligible)}
	}
	if n == 0 {
		return []uuid.UUID{}, nil
	}

	pool := append([]uuid.UUID(nil), eligible...)
	rng := rand.New(rand.NewPCG(seed, 0))
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n], nil
}
