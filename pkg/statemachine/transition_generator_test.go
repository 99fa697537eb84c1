package statemachine

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Nepenthes/pkg/generator"
	"github.com/CTAG07/Nepenthes/pkg/sample"
)

func TestTransitionGeneratorPairs(t *testing.T) {
	ts, err := ParseTransitions("null->A^1, A->B^3, B->null^2")
	require.NoError(t, err)
	m := New[string](WithSource(sample.NewSource(1)))
	require.NoError(t, m.AddTransitions(ts))

	g := NewTransitionGenerator(m)
	_, err = g.Generate()
	assert.ErrorIs(t, err, generator.ErrNotInitialized)
	require.NoError(t, g.Init(context.Background()))

	for round := 0; round < 2; round++ {
		got, err := generator.Take[Transition[string]](g, 10)
		require.NoError(t, err)
		text, err := FormatTransitions(got)
		require.NoError(t, err)
		assert.Equal(t, "null->A^1, A->B^3, B->null^2", text)

		_, err = g.Generate()
		assert.ErrorIs(t, err, io.EOF)
		require.NoError(t, g.Reset())
	}

	require.NoError(t, g.Close())
	_, err = g.Generate()
	assert.ErrorIs(t, err, generator.ErrClosed)
}

func TestTransitionGeneratorScenario(t *testing.T) {
	ts, err := ParseTransitions("null->S1^1, S1->S2^2, S1->null^1, S2->null^1")
	require.NoError(t, err)
	m := New[string](WithSource(sample.NewSource(4)))
	require.NoError(t, m.AddTransitions(ts))
	g := NewTransitionGenerator(m)
	require.NoError(t, g.Init(context.Background()))

	for i := 0; i < 2000; i++ {
		pairs, err := generator.Take[Transition[string]](g, 100)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(pairs), 2)

		assert.True(t, pairs[0].IsStart())
		assert.Equal(t, "S1", *pairs[0].To)

		var ends int
		for k, p := range pairs {
			if p.IsEnd() {
				ends++
				assert.Equal(t, len(pairs)-1, k, "END pair must be last")
			}
			if k > 0 {
				assert.Equal(t, *pairs[k-1].To, *p.From, "pairs must chain")
			}
		}
		assert.Equal(t, 1, ends)
		require.NoError(t, g.Reset())
	}
}

func TestTransitionGeneratorImplicitEnd(t *testing.T) {
	m := New[string]()
	require.NoError(t, m.AddStart("A", 1))
	require.NoError(t, m.Add("A", "B", 1))
	require.NoError(t, m.AddEnd("C", 1))
	g := NewTransitionGenerator(m)
	require.NoError(t, g.Init(context.Background()))

	pairs, err := generator.Take[Transition[string]](g, 10)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	last := pairs[2]
	assert.Equal(t, "B", *last.From)
	assert.True(t, last.IsEnd())
	assert.Equal(t, 0.0, last.Weight)
}
