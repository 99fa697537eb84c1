package markov

import (
	"bufio"
	"io"
	"regexp"
)

// TextTokenizer splits text into word and punctuation atoms and treats
// sentence-ending punctuation as the end of a training sequence.
type TextTokenizer struct {
	separator   string
	eoc         string
	word        *regexp.Regexp
	sentenceEnd *regexp.Regexp
	glued       *regexp.Regexp
}

// TokenizerOption configures a TextTokenizer.
type TokenizerOption func(*TextTokenizer)

// WithSeparator sets the string placed between rendered atoms.
// Default: " "
func WithSeparator(sep string) TokenizerOption {
	return func(t *TextTokenizer) { t.separator = sep }
}

// WithEOC sets the string appended to a rendered sequence.
// Default: "."
func WithEOC(eoc string) TokenizerOption {
	return func(t *TextTokenizer) { t.eoc = eoc }
}

// WithWordPattern sets the regex that extracts atoms from a line.
// Default: `[\w']+|[.,!?;]`
func WithWordPattern(pattern string) TokenizerOption {
	return func(t *TextTokenizer) { t.word = regexp.MustCompile(pattern) }
}

// WithSentenceEndPattern sets the regex that marks an atom as ending a sequence.
// Default: `^[.!?]$`
func WithSentenceEndPattern(pattern string) TokenizerOption {
	return func(t *TextTokenizer) { t.sentenceEnd = regexp.MustCompile(pattern) }
}

// WithGluedPattern sets the regex for atoms rendered without a separator in
// front of them and without an EOC after them.
// Default: `^[.,!?;]`
func WithGluedPattern(pattern string) TokenizerOption {
	return func(t *TextTokenizer) { t.glued = regexp.MustCompile(pattern) }
}

// NewTextTokenizer creates a tokenizer with default settings.
func NewTextTokenizer(opts ...TokenizerOption) *TextTokenizer {
	t := &TextTokenizer{
		separator:   " ",
		eoc:         ".",
		word:        regexp.MustCompile(`[\w']+|[.,!?;]`),
		sentenceEnd: regexp.MustCompile(`^[.!?]$`),
		glued:       regexp.MustCompile(`^[.,!?;]`),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Separator implements Tokenizer.
func (t *TextTokenizer) Separator(_, next string) string {
	if t.glued.MatchString(next) {
		return ""
	}
	return t.separator
}

// EOC implements Tokenizer.
func (t *TextTokenizer) EOC(last string) string {
	if t.glued.MatchString(last) {
		return ""
	}
	return t.eoc
}

// NewStream implements Tokenizer.
func (t *TextTokenizer) NewStream(r io.Reader) StreamTokenizer {
	return &textStream{
		scanner:     bufio.NewScanner(r),
		word:        t.word,
		sentenceEnd: t.sentenceEnd,
	}
}

type textStream struct {
	scanner     *bufio.Scanner
	pending     []string
	word        *regexp.Regexp
	sentenceEnd *regexp.Regexp
}

// Next returns the next token, or io.EOF once the reader is drained.
func (s *textStream) Next() (*Token, error) {
	for len(s.pending) == 0 {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		s.pending = s.word.FindAllString(s.scanner.Text(), -1)
	}

	text := s.pending[0]
	s.pending = s.pending[1:]
	return &Token{Text: text, EOC: s.sentenceEnd.MatchString(text)}, nil
}
