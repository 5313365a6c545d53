package random

import (
	"math/rand/v2"
)

const identifierAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Random is a deterministic pseudorandom source. Every worker owns its own
// instance seeded externally, so runs are reproducible when the same seed is
// supplied. Not safe for concurrent use.
type Random struct {
	rng *rand.Rand
}

// New creates a Random seeded with the given value.
func New(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// IntN returns a uniform integer in [0, n). n must be positive.
func (r *Random) IntN(n int) int {
	return r.rng.IntN(n)
}

// Between returns a uniform integer in [min, max], both bounds inclusive.
func (r *Random) Between(min, max int) int {
	if min >= max {
		return min
	}
	return min + r.rng.IntN(max-min+1)
}

// Uint64 returns a uniform 64-bit value.
func (r *Random) Uint64() uint64 {
	return r.rng.Uint64()
}

// Float64Between returns a uniform float in [min, max).
func (r *Random) Float64Between(min, max float64) float64 {
	if min >= max {
		return min
	}
	return min + r.rng.Float64()*(max-min)
}

// Bool returns true or false with equal probability.
func (r *Random) Bool() bool {
	return r.rng.IntN(2) == 1
}

// String returns a random alphanumeric string with a uniform length in
// [minLen, maxLen].
func (r *Random) String(minLen, maxLen int) string {
	n := r.Between(minLen, maxLen)
	if n <= 0 {
		return ""
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = identifierAlphabet[r.rng.IntN(len(identifierAlphabet))]
	}
	return string(buf)
}

// Shuffle permutes the slice in place.
func Shuffle[T any](r *Random, s []T) {
	r.rng.Shuffle(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
}

// Perm returns a shuffled slice of the integers [0, n).
func (r *Random) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	Shuffle(r, p)
	return p
}
