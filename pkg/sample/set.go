package sample

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmpty is returned when drawing from a set with no members.
	ErrEmpty = errors.New("sample set is empty")
	// ErrInvalidWeight is returned for negative, NaN or infinite weights.
	ErrInvalidWeight = errors.New("invalid sample weight")
	// ErrDuplicateValue is returned by a unique set when a value is added twice.
	ErrDuplicateValue = errors.New("duplicate sample value")
)

// Sample is a single value together with its relative weight.
type Sample[V comparable] struct {
	Value  V
	Weight float64
}

// Set is an ordered collection of weighted samples with a cached total
// weight. The zero value is an empty, non-unique set ready for use.
//
// A Set is not safe for concurrent mutation. Concurrent draws are safe once
// the set has been normalized and as long as the Source is.
type Set[V comparable] struct {
	samples     []Sample[V]
	totalWeight float64
	unique      bool
	normalized  bool
}

// NewSet creates an empty set. A unique set rejects values that are already
// present.
func NewSet[V comparable](unique bool) *Set[V] {
	return &Set[V]{unique: unique}
}

// Add appends value with the given weight.
func (s *Set[V]) Add(value V, weight float64) error {
	if err := checkWeight(weight); err != nil {
		return fmt.Errorf("add %v: %w", value, err)
	}
	if s.unique && s.Contains(value) {
		return fmt.Errorf("add %v: %w", value, ErrDuplicateValue)
	}
	s.samples = append(s.samples, Sample[V]{Value: value, Weight: weight})
	s.totalWeight += weight
	s.normalized = false
	return nil
}

// AddValue appends value with weight 1.
func (s *Set[V]) AddValue(value V) error {
	return s.Add(value, 1)
}

// SetWeight replaces the weight of the i-th sample.
func (s *Set[V]) SetWeight(i int, weight float64) error {
	if err := checkWeight(weight); err != nil {
		return fmt.Errorf("set weight of %v: %w", s.samples[i].Value, err)
	}
	s.totalWeight += weight - s.samples[i].Weight
	s.samples[i].Weight = weight
	s.normalized = false
	return nil
}

// Normalize applies the unweighted fallback: if the total weight is exactly
// zero, every member gets weight 1. The total is recomputed from scratch
// either way, so rounding drift from SetWeight is discarded.
func (s *Set[V]) Normalize() {
	var total float64
	for _, sample := range s.samples {
		total += sample.Weight
	}
	if total == 0 {
		for i := range s.samples {
			s.samples[i].Weight = 1
		}
		total = float64(len(s.samples))
	}
	s.totalWeight = total
	s.normalized = true
}

// DrawIndex returns an index in [0, Len()) chosen with probability
// Weight(i)/TotalWeight(). The set is normalized first if needed.
func (s *Set[V]) DrawIndex(src Source) (int, error) {
	if len(s.samples) == 0 {
		return 0, ErrEmpty
	}
	if !s.normalized {
		s.Normalize()
	}

	r := src.Float64() * s.totalWeight
	last := 0
	var cumulative float64
	for i, sample := range s.samples {
		if sample.Weight == 0 {
			continue
		}
		cumulative += sample.Weight
		if r < cumulative {
			return i, nil
		}
		last = i
	}
	// Floating point rounding can leave r a hair above the running sum.
	return last, nil
}

// Draw returns the value at a randomly drawn index.
func (s *Set[V]) Draw(src Source) (V, error) {
	i, err := s.DrawIndex(src)
	if err != nil {
		var zero V
		return zero, err
	}
	return s.samples[i].Value, nil
}

// Contains reports whether value is a member of the set.
func (s *Set[V]) Contains(value V) bool {
	return s.IndexOf(value) >= 0
}

// IndexOf returns the index of the first sample holding value, or -1.
func (s *Set[V]) IndexOf(value V) int {
	for i, sample := range s.samples {
		if sample.Value == value {
			return i
		}
	}
	return -1
}

// Variety returns the number of configured values.
func (s *Set[V]) Variety() int {
	return len(s.samples)
}

// Len returns the number of samples.
func (s *Set[V]) Len() int {
	return len(s.samples)
}

// Value returns the i-th value.
func (s *Set[V]) Value(i int) V {
	return s.samples[i].Value
}

// Weight returns the i-th weight.
func (s *Set[V]) Weight(i int) float64 {
	return s.samples[i].Weight
}

// TotalWeight returns the cached sum of weights.
func (s *Set[V]) TotalWeight() float64 {
	return s.totalWeight
}

// Samples returns a copy of the set's samples in insertion order.
func (s *Set[V]) Samples() []Sample[V] {
	out := make([]Sample[V], len(s.samples))
	copy(out, s.samples)
	return out
}

func checkWeight(weight float64) error {
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("%w: %g", ErrInvalidWeight, weight)
	}
	return nil
}
