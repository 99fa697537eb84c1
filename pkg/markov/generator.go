package markov

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CTAG07/Nepenthes/pkg/generator"
	"github.com/CTAG07/Nepenthes/pkg/sample"
)

// Generator produces one new sequence per call to Generate, drawn from a
// trained Model. It never reports io.EOF.
type Generator[A comparable] struct {
	model *Model[A]
	src   sample.Source
	opts  []GenerateOption
	state generator.State
	owned bool
}

var _ generator.Generator[[]string] = (*Generator[string])(nil)

// NewGenerator wraps a trained model. A nil src selects sample.DefaultSource().
// The model must not be trained further once Init has been called.
func NewGenerator[A comparable](model *Model[A], src sample.Source, opts ...GenerateOption) *Generator[A] {
	if src == nil {
		src = sample.DefaultSource()
	}
	return &Generator[A]{
		model: model,
		src:   src,
		opts:  opts,
	}
}

// NewOwnedGenerator is like NewGenerator but takes ownership of the model:
// Close releases its context tree. Nothing else may use the model afterwards.
func NewOwnedGenerator[A comparable](model *Model[A], src sample.Source, opts ...GenerateOption) *Generator[A] {
	g := NewGenerator(model, src, opts...)
	g.owned = true
	return g
}

// Init checks that the model can produce at least one non-empty sequence.
func (g *Generator[A]) Init(ctx context.Context) error {
	if err := g.state.CheckInit(); err != nil {
		return err
	}
	if g.model == nil || g.model.sequences == 0 {
		return fmt.Errorf("init seed generator: %w", ErrEmptyModel)
	}
	if !g.model.canStart() {
		return fmt.Errorf("init seed generator: only empty sequences were added: %w", ErrEmptyModel)
	}
	g.state = generator.Ready

	g.model.logger.DebugContext(ctx, "Seed generator initialized",
		slog.Int("depth", g.model.depth),
		slog.Int("sequences", g.model.sequences),
		slog.Int("nodes", len(g.model.nodes)-1),
	)
	return nil
}

// Generate returns a new non-empty sequence.
func (g *Generator[A]) Generate() ([]A, error) {
	if err := g.state.CheckReady(); err != nil {
		return nil, err
	}
	return g.model.Generate(g.src, g.opts...)
}

// Reset only checks the lifecycle; every sequence starts from a fresh history.
func (g *Generator[A]) Reset() error {
	return g.state.CheckReady()
}

// Close drops the generator's reference to the model, releasing the model's
// context tree when the generator owns it.
func (g *Generator[A]) Close() error {
	if g.owned && g.model != nil {
		g.model.Release()
	}
	g.state = generator.Closed
	g.model = nil
	return nil
}

// Capabilities implements generator.Generator. Generation only reads the
// model, so sharing is limited by the random source alone.
func (g *Generator[A]) Capabilities() generator.Capabilities {
	return generator.Capabilities{
		Parallelizable: true,
		ThreadSafe:     sample.IsConcurrent(g.src),
	}
}

// canStart reports whether some sequence begins with a real atom.
func (m *Model[A]) canStart() bool {
	context := []int{StartID}
	if m.depth == 1 {
		context = nil
	}
	node, ok := m.lookup(context)
	if !ok {
		return false
	}
	for _, idx := range m.nodes[node].order {
		if atom := m.nodes[idx].atom; atom != StartID && atom != EndID {
			return true
		}
	}
	return false
}
