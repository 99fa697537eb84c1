package store

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Nepenthes/pkg/sample"
)

func TestListLifecycle(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	info, err := s.CreateList(ctx, "colors", false)
	require.NoError(t, err)
	assert.Equal(t, "colors", info.Name)
	assert.Zero(t, info.Values)
	assert.False(t, info.Unique)

	_, err = s.CreateList(ctx, "colors", true)
	assert.ErrorIs(t, err, ErrExists)

	rows := []sample.Row[string]{
		{Value: "red", Weight: 3, HasWeight: true},
		{Value: "green"},
		{Value: "red", Weight: 0.5, HasWeight: true},
	}
	require.NoError(t, s.AddListValues(ctx, "colors", rows))

	got, err := s.ListValues(ctx, "colors")
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	lists, err := s.Lists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, 3, lists[0].Values)

	require.NoError(t, s.RemoveList(ctx, "colors"))
	_, err = s.ListInfo(ctx, "colors")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.RemoveList(ctx, "colors"), ErrNotFound, "removing twice")
}

func TestAddListValuesValidation(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.CreateList(ctx, "ids", true)
	require.NoError(t, err)
	require.NoError(t, s.AddListValues(ctx, "ids", []sample.Row[string]{{Value: "a"}, {Value: "b"}}))

	testCases := []struct {
		name    string
		rows    []sample.Row[string]
		wantErr error
	}{
		{"negative weight", []sample.Row[string]{{Value: "c", Weight: -1, HasWeight: true}}, sample.ErrInvalidWeight},
		{"nan weight", []sample.Row[string]{{Value: "c", Weight: math.NaN(), HasWeight: true}}, sample.ErrInvalidWeight},
		{"duplicate in batch", []sample.Row[string]{{Value: "c"}, {Value: "c"}}, sample.ErrDuplicateValue},
		{"duplicate of stored value", []sample.Row[string]{{Value: "c"}, {Value: "a"}}, sample.ErrDuplicateValue},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, s.AddListValues(ctx, "ids", tc.rows), tc.wantErr)
		})
	}

	info, err := s.ListInfo(ctx, "ids")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Values, "failed batches must not write anything")

	assert.ErrorIs(t, s.AddListValues(ctx, "missing", nil), ErrNotFound)
}

func TestPutList(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	original := []sample.Row[string]{{Value: "a", Weight: 2, HasWeight: true}, {Value: "b"}}
	info, err := s.PutList(ctx, "letters", true, original)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Values)
	assert.True(t, info.Unique)

	testCases := []struct {
		name    string
		unique  bool
		rows    []sample.Row[string]
		wantErr error
	}{
		{"negative weight", false, []sample.Row[string]{{Value: "c", Weight: -1, HasWeight: true}}, sample.ErrInvalidWeight},
		{"infinite weight", false, []sample.Row[string]{{Value: "c", Weight: math.Inf(1), HasWeight: true}}, sample.ErrInvalidWeight},
		{"duplicate in a unique list", true, []sample.Row[string]{{Value: "c"}, {Value: "c"}}, sample.ErrDuplicateValue},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.PutList(ctx, "letters", tc.unique, tc.rows)
			require.ErrorIs(t, err, tc.wantErr)

			got, err := s.ListValues(ctx, "letters")
			require.NoError(t, err)
			assert.Equal(t, original, got, "a rejected replacement keeps the stored list")
		})
	}

	replacement := []sample.Row[string]{{Value: "z"}, {Value: "z"}}
	info, err = s.PutList(ctx, "letters", false, replacement)
	require.NoError(t, err)
	assert.False(t, info.Unique)
	got, err := s.ListValues(ctx, "letters")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)

	lists, err := s.Lists(ctx)
	require.NoError(t, err)
	assert.Len(t, lists, 1, "replacing must not leave the old list behind")
}

func TestLoadList(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.CreateList(ctx, "coin", false)
	require.NoError(t, err)
	rows := []sample.Row[string]{
		{Value: "heads", Weight: 1, HasWeight: true},
		{Value: "tails", Weight: 3, HasWeight: true},
	}
	require.NoError(t, s.AddListValues(ctx, "coin", rows))

	gen, err := s.LoadList(ctx, "coin", sample.WithSource(sample.NewSource(7)))
	require.NoError(t, err)
	require.NoError(t, gen.Init(ctx))
	defer func() { _ = gen.Close() }()

	const draws = 40000
	var tails int
	for i := 0; i < draws; i++ {
		v, err := gen.Generate()
		require.NoError(t, err)
		if v == "tails" {
			tails++
		}
	}
	assert.InDelta(t, 0.75, float64(tails)/draws, 0.02, "probability of tails")
}

func TestLoadEmptyList(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.CreateList(ctx, "empty", false)
	require.NoError(t, err)
	gen, err := s.LoadList(ctx, "empty")
	require.NoError(t, err)
	assert.ErrorIs(t, gen.Init(ctx), sample.ErrEmpty)
}
