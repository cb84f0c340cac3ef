package rankkey

import (
	"math/rand"
	"sync"
)

// Jitter interface for testability (use math/rand.Rand).
type Jitter interface {
	// Uniform integer in [min, max], inclusive.
	IntnRange(min, max int) int
}

// NoJitter implements Jitter by always choosing the lowest value, which
// makes every generated key the deterministic midpoint.
type NoJitter struct{}

func (NoJitter) IntnRange(min, max int) int { return min }

// RandJitter is a helper backed by *rand.Rand. A *rand.Rand is not safe for
// concurrent use, so RandJitter serializes access to it.
type RandJitter struct {
	mu sync.Mutex
	R  *rand.Rand
}

// NewRandJitter returns a RandJitter seeded with seed.
func NewRandJitter(seed int64) *RandJitter {
	return &RandJitter{R: rand.New(rand.NewSource(seed))}
}

func (j *RandJitter) IntnRange(min, max int) int {
	if max <= min {
		return min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return min + j.R.Intn(max-min+1)
}

// BetweenJitter picks a key strictly between lower and upper, with
// randomization. Two clients inserting into the same gap at the same time
// are then unlikely to produce the same key. jitterRange bounds how far, in
// digit steps, the pick may drift from the midpoint.
func BetweenJitter(lower, upper Key, j Jitter, jitterRange int) (Key, error) {
	if lower == upper {
		return Next(lower)
	}
	return between(lower, upper, j, jitterRange)
}
