package markov

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// maxSentenceLength prevents massive sentences from taking up a large amount of memory
const maxSentenceLength = 4096

// AddSequences records every sequence of a corpus.
func (m *Model[A]) AddSequences(ctx context.Context, corpus [][]A) {
	for _, seq := range corpus {
		m.AddSequence(seq)
	}
	m.logger.DebugContext(ctx, "Corpus added",
		slog.Int("depth", m.depth),
		slog.Int("sequences_added", len(corpus)),
		slog.Int("nodes", len(m.nodes)-1),
	)
}

// SplitSentences tokenizes text from r and calls fn once per non-empty
// sentence. Text after the last sentence terminator still counts as a
// sentence. The slice passed to fn is reused between calls. It returns the
// number of sentences delivered.
func SplitSentences(tokenizer Tokenizer, r io.Reader, fn func(sentence []string) error) (int, error) {
	stream := tokenizer.NewStream(r)
	var sentence []string
	var count int

	flush := func() error {
		if len(sentence) == 0 {
			return nil
		}
		if err := fn(sentence); err != nil {
			return err
		}
		count++
		sentence = sentence[:0]
		return nil
	}

	for {
		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return count, fmt.Errorf("tokenizer error: %w", err)
		}

		if !token.EOC && len(sentence) < maxSentenceLength {
			sentence = append(sentence, token.Text)
			continue
		}
		if err := flush(); err != nil {
			return count, err
		}
	}
	return count, flush()
}

// TrainText tokenizes text from r and adds one sequence per sentence. It
// returns the number of sentences added.
func TrainText(ctx context.Context, m *Model[string], tokenizer Tokenizer, r io.Reader) (int, error) {
	count, err := SplitSentences(tokenizer, r, func(sentence []string) error {
		m.AddSequence(sentence)
		return nil
	})
	if err != nil {
		return count, err
	}

	m.logger.InfoContext(ctx, "Training completed",
		slog.Int("depth", m.depth),
		slog.Int("sentences_processed", count),
		slog.Int("vocab_size", len(m.vocab)-2),
	)
	return count, nil
}
