package sample

import (
	"math/rand/v2"
)

// Source is the random number source used for draws. *rand.Rand from
// math/rand/v2 satisfies it.
type Source interface {
	// Float64 returns a pseudo-random number in [0.0, 1.0).
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource returns the process-wide source backed by the top-level
// math/rand/v2 functions. It is safe for concurrent use.
func DefaultSource() Source {
	return globalSource{}
}

// NewSource returns a deterministic PCG source for the given seed. The
// returned source is not safe for concurrent use.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// IsConcurrent reports whether src may be shared between goroutines.
func IsConcurrent(src Source) bool {
	_, ok := src.(globalSource)
	return ok
}
