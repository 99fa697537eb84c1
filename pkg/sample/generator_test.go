package sample

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Nepenthes/pkg/generator"
)

func TestGeneratorLifecycle(t *testing.T) {
	ctx := context.Background()
	g := NewGenerator[string](WithSource(NewSource(1)))

	_, err := g.Generate()
	assert.ErrorIs(t, err, generator.ErrNotInitialized)
	assert.ErrorIs(t, g.Reset(), generator.ErrNotInitialized)

	require.NoError(t, g.Add("a", 1))
	require.NoError(t, g.Init(ctx))
	assert.ErrorIs(t, g.Init(ctx), generator.ErrAlreadyInitialized)
	assert.ErrorIs(t, g.Add("b", 1), generator.ErrAlreadyInitialized)

	v, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	assert.NoError(t, g.Reset())

	require.NoError(t, g.Close())
	_, err = g.Generate()
	assert.ErrorIs(t, err, generator.ErrClosed)
	assert.ErrorIs(t, err, generator.ErrIllegalState)
	assert.NoError(t, g.Close())
}

func TestGeneratorInitEmpty(t *testing.T) {
	g := NewGenerator[int]()
	assert.ErrorIs(t, g.Init(context.Background()), ErrEmpty)
}

func TestGeneratorRows(t *testing.T) {
	g := NewGenerator[string](WithSource(NewSource(9)))
	rows := []Row[string]{
		{Value: "rare", Weight: 1, HasWeight: true},
		{Value: "common", Weight: 9, HasWeight: true},
		{Value: "default"},
	}
	require.NoError(t, g.AddRows(rows))
	require.NoError(t, g.Init(context.Background()))
	assert.Equal(t, 3, g.Variety())

	values, err := generator.Take[string](g, 110000)
	require.NoError(t, err)
	require.Len(t, values, 110000)

	counts := map[string]int{}
	for _, v := range values {
		counts[v]++
	}
	assert.InDelta(t, 1.0/11, float64(counts["rare"])/110000, 0.02)
	assert.InDelta(t, 9.0/11, float64(counts["common"])/110000, 0.02)
	assert.InDelta(t, 1.0/11, float64(counts["default"])/110000, 0.02)
}

func TestGeneratorRowErrors(t *testing.T) {
	g := NewGenerator[string](WithUnique(true))
	err := g.AddRows([]Row[string]{{Value: "a"}, {Value: "a"}})
	assert.ErrorIs(t, err, ErrDuplicateValue)
	assert.ErrorContains(t, err, "row 1")

	err = g.AddSamples([]Sample[string]{{Value: "b", Weight: -3}})
	assert.ErrorIs(t, err, ErrInvalidWeight)
}

func TestGeneratorCapabilities(t *testing.T) {
	shared := NewGenerator[int]()
	assert.Equal(t, generator.Capabilities{Parallelizable: true, ThreadSafe: true}, shared.Capabilities())

	seeded := NewGenerator[int](WithSource(NewSource(1)))
	assert.False(t, seeded.Capabilities().ThreadSafe)
}
