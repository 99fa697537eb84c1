package markov

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Nepenthes/pkg/generator"
	"github.com/CTAG07/Nepenthes/pkg/sample"
)

func TestGeneratorLifecycle(t *testing.T) {
	ctx, m := newTrainedModel(t, 2)
	g := NewGenerator(m, sample.NewSource(7), WithMaxLength(20))

	_, err := g.Generate()
	assert.ErrorIs(t, err, generator.ErrNotInitialized, "Generate before Init")
	require.NoError(t, g.Init(ctx))
	assert.ErrorIs(t, g.Init(ctx), generator.ErrAlreadyInitialized, "second Init")

	seqs, err := generator.Take[[]string](g, 100)
	require.NoError(t, err)
	require.Len(t, seqs, 100)
	for _, seq := range seqs {
		assert.NotEmpty(t, seq)
		assert.LessOrEqual(t, len(seq), 20)
	}

	assert.NoError(t, g.Reset())
	require.NoError(t, g.Close())
	_, err = g.Generate()
	assert.ErrorIs(t, err, generator.ErrClosed, "Generate after Close")
	assert.ErrorIs(t, g.Reset(), generator.ErrClosed, "Reset after Close")
}

func TestGeneratorInitErrors(t *testing.T) {
	ctx := context.Background()

	empty, _ := NewModel[string](2)
	assert.ErrorIs(t, NewGenerator(empty, nil).Init(ctx), ErrEmptyModel, "empty model")

	onlyEmpty, _ := NewModel[string](3)
	onlyEmpty.AddSequence(nil)
	onlyEmpty.AddSequence([]string{})
	assert.ErrorIs(t, NewGenerator(onlyEmpty, nil).Init(ctx), ErrEmptyModel, "only empty sequences")

	depthOne, _ := NewModel[string](1)
	depthOne.AddSequence([]string{"a"})
	assert.NoError(t, NewGenerator(depthOne, nil).Init(ctx), "depth 1 model")
}

func TestGeneratorCapabilities(t *testing.T) {
	_, m := newTrainedModel(t, 2)

	shared := NewGenerator(m, nil).Capabilities()
	assert.True(t, shared.Parallelizable)
	assert.True(t, shared.ThreadSafe, "default source generator")
	seeded := NewGenerator(m, sample.NewSource(1)).Capabilities()
	assert.False(t, seeded.ThreadSafe, "seeded source generator must not claim thread safety")
}

func TestCloseReleasesOwnedModel(t *testing.T) {
	ctx, m := newTrainedModel(t, 2)
	before := m.Stats()

	shared := NewGenerator(m, sample.NewSource(1))
	require.NoError(t, shared.Init(ctx))
	require.NoError(t, shared.Close())
	assert.Equal(t, before, m.Stats(), "closing a generator must not touch a model it does not own")

	owned := NewOwnedGenerator(m, sample.NewSource(1))
	require.NoError(t, owned.Init(ctx))
	require.NoError(t, owned.Close())
	s := m.Stats()
	assert.Zero(t, s.Nodes, "nodes after closing the owning generator")
	assert.Zero(t, s.VocabSize, "vocabulary after closing the owning generator")
	assert.NoError(t, owned.Close(), "closing twice")
}
