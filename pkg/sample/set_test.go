package sample

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frequencies[V comparable](t *testing.T, s *Set[V], src Source, draws int) map[V]float64 {
	t.Helper()
	counts := make(map[V]int)
	for i := 0; i < draws; i++ {
		v, err := s.Draw(src)
		require.NoError(t, err)
		counts[v]++
	}
	freq := make(map[V]float64, len(counts))
	for v, c := range counts {
		freq[v] = float64(c) / float64(draws)
	}
	return freq
}

func TestSetConvergence(t *testing.T) {
	s := NewSet[string](false)
	require.NoError(t, s.Add("A", 1))
	require.NoError(t, s.Add("B", 3))

	freq := frequencies(t, s, NewSource(1), 400000)
	assert.InDelta(t, 0.25, freq["A"], 0.02)
	assert.InDelta(t, 0.75, freq["B"], 0.02)
}

func TestSetUniformFallback(t *testing.T) {
	testCases := []struct {
		name string
		fill func(s *Set[int]) error
	}{
		{
			name: "unweighted adds",
			fill: func(s *Set[int]) error {
				for i := 0; i < 4; i++ {
					if err := s.AddValue(i); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			name: "explicit zero weights",
			fill: func(s *Set[int]) error {
				for i := 0; i < 4; i++ {
					if err := s.Add(i, 0); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSet[int](false)
			require.NoError(t, tc.fill(s))

			freq := frequencies(t, s, NewSource(7), 200000)
			require.Len(t, freq, 4)
			for v, f := range freq {
				assert.InDelta(t, 0.25, f, 0.02, "value %d", v)
			}
			assert.Equal(t, 4.0, s.TotalWeight())
		})
	}
}

func TestSetRejectsInvalidWeights(t *testing.T) {
	s := NewSet[string](false)
	for _, w := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := s.Add("x", w)
		assert.ErrorIs(t, err, ErrInvalidWeight, "weight %g", w)
	}
	assert.Equal(t, 0, s.Len())
}

func TestSetUniqueMode(t *testing.T) {
	unique := NewSet[string](true)
	require.NoError(t, unique.AddValue("a"))
	assert.ErrorIs(t, unique.AddValue("a"), ErrDuplicateValue)
	assert.Equal(t, 1, unique.Variety())

	loose := NewSet[string](false)
	require.NoError(t, loose.AddValue("a"))
	require.NoError(t, loose.AddValue("a"))
	assert.Equal(t, 2, loose.Variety())
}

func TestSetDrawEmpty(t *testing.T) {
	s := NewSet[string](false)
	_, err := s.DrawIndex(DefaultSource())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSetDrawIndexInRange(t *testing.T) {
	s := NewSet[int](false)
	require.NoError(t, s.Add(0, 0))
	require.NoError(t, s.Add(1, 0.5))
	require.NoError(t, s.Add(2, 0))
	require.NoError(t, s.Add(3, 2))

	src := NewSource(3)
	for i := 0; i < 10000; i++ {
		idx, err := s.DrawIndex(src)
		require.NoError(t, err)
		assert.Contains(t, []int{1, 3}, idx, "zero-weight samples must never be drawn")
	}
}

func TestSetWeightUpdatesTotal(t *testing.T) {
	s := NewSet[string](false)
	require.NoError(t, s.Add("a", 1))
	require.NoError(t, s.Add("b", 2))
	require.NoError(t, s.SetWeight(0, 5))
	assert.Equal(t, 7.0, s.TotalWeight())
	assert.ErrorIs(t, s.SetWeight(1, -2), ErrInvalidWeight)
	assert.Equal(t, 2.0, s.Weight(1))
}

func TestSetContains(t *testing.T) {
	s := NewSet[string](false)
	require.NoError(t, s.AddValue("x"))
	assert.True(t, s.Contains("x"))
	assert.False(t, s.Contains("y"))
	assert.Equal(t, -1, s.IndexOf("y"))
}

func BenchmarkSetDraw(b *testing.B) {
	s := NewSet[int](false)
	for i := 0; i < 64; i++ {
		_ = s.Add(i, float64(i+1))
	}
	src := NewSource(1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.DrawIndex(src); err != nil {
			b.Fatal(err)
		}
	}
}
