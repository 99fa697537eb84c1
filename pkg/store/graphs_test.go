package store

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Nepenthes/pkg/sample"
	"github.com/CTAG07/Nepenthes/pkg/statemachine"
)

func TestGraphLifecycle(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.CreateGraph(ctx, "traffic")
	require.NoError(t, err)
	_, err = s.CreateGraph(ctx, "traffic")
	assert.ErrorIs(t, err, ErrExists)

	ts, err := statemachine.ParseTransitions("null->red, red->green^2, green->red^0.5, green->null^1")
	require.NoError(t, err)
	require.NoError(t, s.AddTransitions(ctx, "traffic", ts))

	got, err := s.Transitions(ctx, "traffic")
	require.NoError(t, err)
	require.Len(t, got, len(ts))
	for i := range ts {
		assert.True(t, ts[i].Equal(got[i]), "transition %d: got %v, want %v", i, got[i], ts[i])
	}

	graphs, err := s.Graphs(ctx)
	require.NoError(t, err)
	require.Len(t, graphs, 1)
	assert.Equal(t, 4, graphs[0].Transitions)

	require.NoError(t, s.RemoveGraph(ctx, "traffic"))
	_, err = s.Transitions(ctx, "traffic")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddTransitionsRejectsBadWeight(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.CreateGraph(ctx, "g")
	require.NoError(t, err)
	ts := []statemachine.Transition[string]{
		statemachine.StartTransition("A", 1),
		statemachine.EndTransition("A", -2),
	}
	assert.ErrorIs(t, s.AddTransitions(ctx, "g", ts), sample.ErrInvalidWeight)
	info, err := s.GraphInfo(ctx, "g")
	require.NoError(t, err)
	assert.Zero(t, info.Transitions, "a rejected batch must not be written")
}

func TestPutGraph(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	original, err := statemachine.ParseTransitions("null->A, A->null")
	require.NoError(t, err)
	_, err = s.PutGraph(ctx, "g", original)
	require.NoError(t, err)

	bad := []statemachine.Transition[string]{
		statemachine.StartTransition("B", 1),
		statemachine.EndTransition("B", -2),
	}
	_, err = s.PutGraph(ctx, "g", bad)
	require.ErrorIs(t, err, sample.ErrInvalidWeight)
	got, err := s.Transitions(ctx, "g")
	require.NoError(t, err)
	require.Len(t, got, 2, "a rejected replacement keeps the stored graph")

	replacement, err := statemachine.ParseTransitions("null->X^2, X->Y, Y->null")
	require.NoError(t, err)
	info, err := s.PutGraph(ctx, "g", replacement)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Transitions)
	got, err = s.Transitions(ctx, "g")
	require.NoError(t, err)
	text, err := statemachine.FormatTransitions(got)
	require.NoError(t, err)
	assert.Equal(t, "null->X^2, X->Y^1, Y->null^1", text)
}

func TestLoadMachine(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.CreateGraph(ctx, "line")
	require.NoError(t, err)
	ts, _ := statemachine.ParseTransitions("null->A, A->B, B->C, C->null")
	require.NoError(t, s.AddTransitions(ctx, "line", ts))

	m, err := s.LoadMachine(ctx, "line", statemachine.WithSource(sample.NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, m.Init(ctx))

	var got []string
	for {
		state, err := m.Generate()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, state)
	}
	assert.Equal(t, []string{"A", "B", "C"}, got)
}

func TestLoadMachineUnterminating(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.CreateGraph(ctx, "loop")
	require.NoError(t, err)
	ts, _ := statemachine.ParseTransitions("null->A, A->B, B->A")
	require.NoError(t, s.AddTransitions(ctx, "loop", ts))
	m, err := s.LoadMachine(ctx, "loop")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Init(ctx), statemachine.ErrNoTerminalState)
}
