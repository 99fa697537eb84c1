package markov

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextTokenizerStream(t *testing.T) {
	stream := NewTextTokenizer().NewStream(strings.NewReader("Hi, there!\nbye."))

	var got []Token
	for {
		token, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, *token)
	}

	want := []Token{
		{Text: "Hi"}, {Text: ","}, {Text: "there"}, {Text: "!", EOC: true},
		{Text: "bye"}, {Text: ".", EOC: true},
	}
	assert.Equal(t, want, got)
}

func TestRender(t *testing.T) {
	testCases := []struct {
		name      string
		tokenizer Tokenizer
		atoms     []string
		expected  string
	}{
		{"Plain sentence", NewTextTokenizer(), []string{"one", "fish"}, "one fish."},
		{"Glued punctuation", NewTextTokenizer(), []string{"hi", ",", "you"}, "hi, you."},
		{"Ends with punctuation", NewTextTokenizer(), []string{"why", "?"}, "why?"},
		{"Custom separator", NewTextTokenizer(WithSeparator("-"), WithEOC("")), []string{"a", "b"}, "a-b"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Render(tc.tokenizer, tc.atoms))
		})
	}
}
