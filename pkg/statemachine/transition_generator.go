package statemachine

import (
	"context"
	"io"

	"github.com/CTAG07/Nepenthes/pkg/generator"
)

// TransitionGenerator wraps a Machine and emits the edges it walks instead
// of the states. The first pair leaves START and the last pair enters END;
// after that Generate returns io.EOF until Reset.
type TransitionGenerator[S comparable] struct {
	machine *Machine[S]
	prev    node[S]
	done    bool
}

var _ generator.Generator[Transition[string]] = (*TransitionGenerator[string])(nil)

// NewTransitionGenerator wraps m. The wrapper owns m from now on; m must not
// be initialized or driven directly.
func NewTransitionGenerator[S comparable](m *Machine[S]) *TransitionGenerator[S] {
	return &TransitionGenerator[S]{machine: m, prev: node[S]{kind: kindStart}}
}

// Init initializes the wrapped machine.
func (g *TransitionGenerator[S]) Init(ctx context.Context) error {
	return g.machine.Init(ctx)
}

// Generate returns the next edge. Its Weight is the configured weight of the
// edge, or 0 for the implicit END of a state without outgoing transitions.
func (g *TransitionGenerator[S]) Generate() (Transition[S], error) {
	if err := g.machine.state.CheckReady(); err != nil {
		return Transition[S]{}, err
	}
	if g.done {
		return Transition[S]{}, io.EOF
	}

	from, to := g.prev, g.machine.current
	t := Transition[S]{From: from.ptr(), To: to.ptr(), Weight: g.machine.edgeWeight(from, to)}
	if to.kind == kindEnd {
		g.done = true
		return t, nil
	}
	if _, err := g.machine.Generate(); err != nil {
		return Transition[S]{}, err
	}
	g.prev = to
	return t, nil
}

// Reset restarts the wrapped machine from START.
func (g *TransitionGenerator[S]) Reset() error {
	if err := g.machine.Reset(); err != nil {
		return err
	}
	g.prev = node[S]{kind: kindStart}
	g.done = false
	return nil
}

// Close closes the wrapped machine.
func (g *TransitionGenerator[S]) Close() error {
	return g.machine.Close()
}

// Capabilities returns the wrapped machine's capabilities.
func (g *TransitionGenerator[S]) Capabilities() generator.Capabilities {
	return g.machine.Capabilities()
}
