package markov

import (
	"context"
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const fishText = "one fish two fish. red fish blue fish."

// newTrainedModel returns a text model of the given depth trained on fishText.
func newTrainedModel(t *testing.T, depth int) (context.Context, *Model[string]) {
	t.Helper()
	ctx := context.Background()
	m, err := NewModel[string](depth)
	require.NoError(t, err, "setup: NewModel")
	_, err = TrainText(ctx, m, NewTextTokenizer(), strings.NewReader(fishText))
	require.NoError(t, err, "setup: TrainText")
	return ctx, m
}

// containsWindow reports whether window occurs contiguously in any sequence
// of the corpus.
func containsWindow(corpus [][]string, window []string) bool {
	for _, seq := range corpus {
	outer:
		for i := 0; i+len(window) <= len(seq); i++ {
			for j := range window {
				if seq[i+j] != window[j] {
					continue outer
				}
			}
			return true
		}
	}
	return false
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
