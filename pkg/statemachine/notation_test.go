package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransitions(t *testing.T) {
	got, err := ParseTransitions(" A->B^2, B->null^1 ,->A, C-> ^0.25")
	require.NoError(t, err)

	want := []Transition[string]{
		NewTransition("A", "B", 2),
		EndTransition("B", 1),
		StartTransition("A", 1),
		EndTransition("C", 0.25),
	}
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "item %d: got %v, want %v", i, got[i], want[i])
	}
}

func TestParseTransitionsErrors(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		offender string
	}{
		{"missing arrow", "A->B, AB^2", "AB^2"},
		{"bad weight", "A->B^x", "A->B^x"},
		{"empty item", "A->B,,B->null", "empty item"},
		{"chained arrows", "A->B->C", "A->B->C"},
		{"weight marker in state", "null->a^b^1, a^b->null^2", "null->a^b^1"},
		{"weight marker in source", "x^y->B^1", "x^y->B^1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTransitions(tc.text)
			assert.ErrorIs(t, err, ErrSyntax)
			assert.ErrorContains(t, err, tc.offender)
		})
	}
}

func TestTransitionNotationRoundTrip(t *testing.T) {
	original := []Transition[string]{
		StartTransition("idle", 3),
		NewTransition("idle", "busy", 0.125),
		NewTransition("busy", "idle", 1e-3),
		EndTransition("busy", 7),
		EndTransition("idle", 0),
	}

	text, err := FormatTransitions(original)
	require.NoError(t, err)
	parsed, err := ParseTransitions(text)
	require.NoError(t, err)

	require.Len(t, parsed, len(original))
	for i := range original {
		assert.True(t, original[i].Equal(parsed[i]), "item %d: got %v, want %v", i, parsed[i], original[i])
	}

	again, err := FormatTransitions(parsed)
	require.NoError(t, err)
	assert.Equal(t, text, again)
}

func TestFormatTransitionsRejectsReservedNames(t *testing.T) {
	for _, name := range []string{"null", "a,b", "x^2", "p->q", " padded", ""} {
		_, err := FormatTransitions([]Transition[string]{StartTransition(name, 1)})
		assert.ErrorIs(t, err, ErrSyntax, "name %q", name)
	}
}

func TestParsedNamesAlwaysFormat(t *testing.T) {
	for _, text := range []string{"null->a^b^1", "a^b->null^2", "A->B^1^2"} {
		ts, err := ParseTransitions(text)
		if err != nil {
			assert.ErrorIs(t, err, ErrSyntax, "text %q", text)
			continue
		}
		_, err = FormatTransitions(ts)
		assert.NoError(t, err, "text %q parsed but cannot be written back", text)
	}
}
