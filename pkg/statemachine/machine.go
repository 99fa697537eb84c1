package statemachine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/Nepenthes/pkg/generator"
	"github.com/CTAG07/Nepenthes/pkg/sample"
)

var (
	// ErrNoStartState is returned by Init when no transition leaves START.
	ErrNoStartState = errors.New("no transition from START")
	// ErrNoTerminalState is returned by Init when END cannot be reached from
	// every state reachable from START.
	ErrNoTerminalState = errors.New("no terminal state reachable")
)

type options struct {
	src    sample.Source
	logger *slog.Logger
}

// Option configures a Machine.
type Option func(*options)

// WithSource sets the random source. Default: sample.DefaultSource().
func WithSource(src sample.Source) Option {
	return func(o *options) {
		if src != nil {
			o.src = src
		}
	}
}

// WithLogger sets the logger. By default all logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Machine is a weighted state machine. Each call to Generate returns the
// current state and moves to a state drawn from its outgoing transitions;
// after END is drawn Generate returns io.EOF until Reset.
//
// A state that has no outgoing transitions at all behaves as if it had a
// single edge to END.
type Machine[S comparable] struct {
	graph   map[node[S]]*sample.Set[node[S]]
	sources []node[S]
	src     sample.Source
	current node[S]
	state   generator.State
	logger  *slog.Logger
}

var _ generator.Generator[string] = (*Machine[string])(nil)

// New creates an empty machine.
func New[S comparable](opts ...Option) *Machine[S] {
	o := &options{
		src:    sample.DefaultSource(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Machine[S]{
		graph:  make(map[node[S]]*sample.Set[node[S]]),
		src:    o.src,
		logger: o.logger,
	}
}

// AddTransition inserts an edge. Adding the same edge twice adds both
// weights to the draw.
func (m *Machine[S]) AddTransition(t Transition[S]) error {
	if err := m.state.CheckInit(); err != nil {
		return err
	}
	from := fromNode(t.From)
	set, ok := m.graph[from]
	if !ok {
		set = sample.NewSet[node[S]](false)
		m.graph[from] = set
		m.sources = append(m.sources, from)
	}
	if err := set.Add(toNode(t.To), t.Weight); err != nil {
		return fmt.Errorf("transition %v: %w", t, err)
	}
	return nil
}

// AddTransitions inserts edges in order.
func (m *Machine[S]) AddTransitions(ts []Transition[S]) error {
	for _, t := range ts {
		if err := m.AddTransition(t); err != nil {
			return err
		}
	}
	return nil
}

// Add inserts the edge from -> to.
func (m *Machine[S]) Add(from, to S, weight float64) error {
	return m.AddTransition(NewTransition(from, to, weight))
}

// AddStart inserts the edge START -> to.
func (m *Machine[S]) AddStart(to S, weight float64) error {
	return m.AddTransition(StartTransition(to, weight))
}

// AddEnd inserts the edge from -> END.
func (m *Machine[S]) AddEnd(from S, weight float64) error {
	return m.AddTransition(EndTransition(from, weight))
}

// Transitions returns the configured edges grouped by source, in insertion
// order.
func (m *Machine[S]) Transitions() []Transition[S] {
	var out []Transition[S]
	for _, from := range m.sources {
		set := m.graph[from]
		for _, s := range set.Samples() {
			out = append(out, Transition[S]{From: from.ptr(), To: s.Value.ptr(), Weight: s.Weight})
		}
	}
	return out
}

// Init validates the graph and draws the first state.
func (m *Machine[S]) Init(ctx context.Context) error {
	if err := m.state.CheckInit(); err != nil {
		return err
	}
	if err := m.validate(); err != nil {
		return fmt.Errorf("init state machine: %w", err)
	}
	for _, set := range m.graph {
		set.Normalize()
	}
	if err := m.enter(); err != nil {
		return err
	}
	m.state = generator.Ready

	m.logger.DebugContext(ctx, "State machine initialized",
		slog.Int("sources", len(m.sources)),
		slog.String("initial_state", m.current.String()),
	)
	return nil
}

// Generate returns the current state and advances to the next one.
func (m *Machine[S]) Generate() (S, error) {
	var zero S
	if err := m.state.CheckReady(); err != nil {
		return zero, err
	}
	if m.current.kind == kindEnd {
		return zero, io.EOF
	}
	result := m.current
	if err := m.advance(); err != nil {
		return zero, err
	}
	return result.state, nil
}

// Reset draws a fresh initial state from START.
func (m *Machine[S]) Reset() error {
	if err := m.state.CheckReady(); err != nil {
		return err
	}
	return m.enter()
}

// Close releases the transition graph.
func (m *Machine[S]) Close() error {
	m.state = generator.Closed
	m.graph = nil
	m.sources = nil
	return nil
}

// Capabilities implements generator.Generator. A machine carries its
// current state, so instances are never shared.
func (m *Machine[S]) Capabilities() generator.Capabilities {
	return generator.Capabilities{Parallelizable: true, ThreadSafe: false}
}

// Current returns the state the next Generate call will return, and false
// once the machine has drawn END.
func (m *Machine[S]) Current() (S, bool) {
	return m.current.state, m.current.kind == kindState
}

func (m *Machine[S]) enter() error {
	next, err := m.graph[node[S]{kind: kindStart}].Draw(m.src)
	if err != nil {
		return fmt.Errorf("draw initial state: %w", err)
	}
	m.current = next
	return nil
}

func (m *Machine[S]) advance() error {
	set, ok := m.graph[m.current]
	if !ok {
		m.current = node[S]{kind: kindEnd}
		return nil
	}
	next, err := set.Draw(m.src)
	if err != nil {
		return fmt.Errorf("draw successor of %v: %w", m.current, err)
	}
	m.current = next
	return nil
}

// edgeWeight returns the configured weight of from -> to, or 0.
func (m *Machine[S]) edgeWeight(from, to node[S]) float64 {
	set, ok := m.graph[from]
	if !ok {
		return 0
	}
	if i := set.IndexOf(to); i >= 0 {
		return set.Weight(i)
	}
	return 0
}
