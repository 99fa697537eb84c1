package markov

import (
	"io"
	"strings"
)

const (
	// StartID is the reserved atom ID for the Start-Of-Chain sentinel.
	StartID = 0
	// EndID is the reserved atom ID for the End-Of-Chain sentinel.
	EndID = 1
	// StartText is the display text for the Start-Of-Chain sentinel.
	StartText = "<SOC>"
	// EndText is the display text for the End-Of-Chain sentinel.
	EndText = "<EOC>"
)

// Token represents a single tokenized unit of text. It contains the text itself
// and a boolean flag indicating if it marks the end of a chain (e.g., a sentence).
type Token struct {
	Text string
	EOC  bool
}

// Tokenizer splits text into tokens for training, and joins generated atoms
// back into text.
type Tokenizer interface {
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
	// Separator returns the string placed between the previous and current
	// tokens when rendering.
	Separator(prev, current string) string
	// EOC returns the string appended after the last token of a rendered
	// sequence.
	EOC(last string) string
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of data, returning one token at a time.
type StreamTokenizer interface {
	// Next returns the next token from the stream. It returns io.EOF as the
	// error when the stream is fully consumed.
	Next() (*Token, error)
}

// Render joins a generated sequence of text atoms into a single string
// using the tokenizer's separator and end-of-chain rules.
func Render(tokenizer Tokenizer, atoms []string) string {
	var builder strings.Builder
	last := StartText
	for i, atom := range atoms {
		if i > 0 {
			builder.WriteString(tokenizer.Separator(last, atom))
		}
		builder.WriteString(atom)
		last = atom
	}
	builder.WriteString(tokenizer.EOC(last))
	return builder.String()
}
