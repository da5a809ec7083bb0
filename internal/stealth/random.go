package stealth

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Random is a goroutine-safe source of jitter and identity picks.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom seeds a PCG generator. Equal seeds give equal sequences.
func NewRandom(seed1, seed2 uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// NewRandomFromRuntime seeds from the runtime's random source.
func NewRandomFromRuntime() *Random {
	return NewRandom(rand.Uint64(), rand.Uint64())
}

// Duration returns a uniform duration in [0, limit].
func (r *Random) Duration(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.rng.Int64N(int64(limit) + 1))
}

// IntN returns a uniform int in [0, n).
func (r *Random) IntN(n int) int {
	if n <= 1 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}
