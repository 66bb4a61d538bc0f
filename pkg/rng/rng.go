// Package rng provides the uniform random source consumed by the matcher.
// The deterministic implementation exists so tests can pin latency and
// slippage draws.
package rng

import (
	"math/rand"
	"time"
)

const (
	lcgModulus    = 1<<31 - 1 // 2^31-1, prime
	lcgMultiplier = 48271
)

// Source produces the next uniform value in [0, 1).
type Source interface {
	Float64() float64
}

// LCG is a Park-Miller linear congruential generator. Same seed, same
// call sequence, same draws.
type LCG struct {
	state int64
}

// NewLCG creates a deterministic source. The seed is normalized into
// (0, 2^31-1); zero and negative seeds are usable.
func NewLCG(seed int64) *LCG {
	s := seed % lcgModulus
	if s < 0 {
		s += lcgModulus
	}
	if s == 0 {
		s = 1
	}
	return &LCG{state: s}
}

// Float64 returns the next value in [0, 1).
func (l *LCG) Float64() float64 {
	l.state = (l.state * lcgMultiplier) % lcgModulus
	return float64(l.state-1) / float64(lcgModulus-1)
}

// System wraps the platform RNG for nondeterministic operation.
type System struct {
	r *rand.Rand
}

// NewSystem creates a time-seeded platform source.
func NewSystem() *System {
	return &System{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Float64 returns the next value in [0, 1).
func (s *System) Float64() float64 {
	return s.r.Float64()
}
