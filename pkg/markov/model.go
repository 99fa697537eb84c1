package markov

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

var (
	// ErrInvalidDepth is returned when a model is created with depth <= 0.
	ErrInvalidDepth = errors.New("model depth must be positive")
	// ErrEmptyModel is returned when generating from a model that has no
	// non-empty training sequence.
	ErrEmptyModel = errors.New("model has no training data")
	// ErrUnknownAtom is returned when a prefix contains an atom that never
	// occurred in training.
	ErrUnknownAtom = errors.New("atom not in model vocabulary")
	// ErrDeadEnd is returned when the generation context was never observed.
	ErrDeadEnd = errors.New("context was never observed")
	// ErrDepthMismatch is returned when merging snapshots of different depth.
	ErrDepthMismatch = errors.New("model depth mismatch")
	// ErrInvalidSnapshot is returned for snapshots that no model could have
	// produced.
	ErrInvalidSnapshot = errors.New("inconsistent model snapshot")
)

// rootNode is the arena index of the tree root.
const rootNode = 0

// seedNode is one node of the context tree. Children are referenced by arena
// index; order keeps insertion order so that seeded draws are reproducible.
type seedNode struct {
	atom     int
	weight   int
	children map[int]int
	order    []int
}

// Model is a depth-bounded context tree over atoms of type A.
//
// Atoms are interned into integer IDs; StartID and EndID are reserved for the
// sentinels. A Model is not safe for concurrent training, but any number of
// goroutines may generate from it once training is done.
type Model[A comparable] struct {
	depth     int
	nodes     []seedNode
	vocab     []A
	ids       map[A]int
	sequences int
	logger    *slog.Logger
}

// NewModel creates an empty model of the given depth (Markov order + 1).
func NewModel[A comparable](depth int) (*Model[A], error) {
	if depth <= 0 {
		return nil, fmt.Errorf("new model with depth %d: %w", depth, ErrInvalidDepth)
	}
	return &Model[A]{
		depth:  depth,
		nodes:  []seedNode{{atom: -1}},
		vocab:  make([]A, 2), // placeholders for StartID and EndID
		ids:    make(map[A]int),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the Model. By default, all logs are discarded.
func (m *Model[A]) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Depth returns the maximum window length recorded by the model.
func (m *Model[A]) Depth() int {
	return m.depth
}

// AddSequence records every window of length 1..depth of the sequence padded
// with the start and end sentinels.
func (m *Model[A]) AddSequence(sequence []A) {
	padded := make([]int, 0, len(sequence)+2)
	padded = append(padded, StartID)
	for _, atom := range sequence {
		padded = append(padded, m.intern(atom))
	}
	padded = append(padded, EndID)
	m.addIDs(padded)
	m.sequences++
}

func (m *Model[A]) addIDs(padded []int) {
	for i := range padded {
		node := rootNode
		for j := i; j < len(padded) && j < i+m.depth; j++ {
			node = m.childOrCreate(node, padded[j])
			m.nodes[node].weight++
		}
	}
}

// Sequences returns how many sequences were added.
func (m *Model[A]) Sequences() int {
	return m.sequences
}

// Release drops the context tree. The model must not be used afterwards.
func (m *Model[A]) Release() {
	m.nodes = nil
	m.vocab = nil
	m.ids = nil
}

func (m *Model[A]) intern(atom A) int {
	if id, ok := m.ids[atom]; ok {
		return id
	}
	id := len(m.vocab)
	m.vocab = append(m.vocab, atom)
	m.ids[atom] = id
	return id
}

func (m *Model[A]) child(parent, atom int) (int, bool) {
	idx, ok := m.nodes[parent].children[atom]
	return idx, ok
}

func (m *Model[A]) childOrCreate(parent, atom int) int {
	if idx, ok := m.child(parent, atom); ok {
		return idx
	}
	idx := len(m.nodes)
	m.nodes = append(m.nodes, seedNode{atom: atom})
	p := &m.nodes[parent]
	if p.children == nil {
		p.children = make(map[int]int)
	}
	p.children[atom] = idx
	p.order = append(p.order, idx)
	return idx
}

// lookup descends from the root through context without creating nodes.
func (m *Model[A]) lookup(context []int) (int, bool) {
	node := rootNode
	for _, atom := range context {
		next, ok := m.child(node, atom)
		if !ok {
			return 0, false
		}
		node = next
	}
	return node, true
}

// Weight returns how often the window occurred in training, or 0 if it never
// did. The window may not contain sentinels.
func (m *Model[A]) Weight(window []A) int {
	if len(window) == 0 || len(window) > m.depth {
		return 0
	}
	path := make([]int, len(window))
	for i, atom := range window {
		id, ok := m.ids[atom]
		if !ok {
			return 0
		}
		path[i] = id
	}
	node, ok := m.lookup(path)
	if !ok {
		return 0
	}
	return m.nodes[node].weight
}
