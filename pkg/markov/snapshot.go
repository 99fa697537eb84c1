package markov

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/natefinch/atomic"
)

// Snapshot is the serializable representation of a trained model, used for
// JSON-based import and export.
type Snapshot[A comparable] struct {
	Name      string `json:"name,omitempty"`
	Depth     int    `json:"depth"`
	Sequences int    `json:"sequences"`
	// Vocabulary is indexed by atom ID. The first two entries stand for the
	// sentinels and hold zero values.
	Vocabulary []A            `json:"vocabulary"`
	Nodes      []ExportedNode `json:"nodes"`
}

// ExportedNode is one recorded window. Nodes are listed in creation order,
// so a node's parent always precedes it; Parent 0 is the tree root and
// Parent k (k > 0) is Nodes[k-1].
type ExportedNode struct {
	Parent int `json:"parent"`
	Atom   int `json:"atom"`
	Weight int `json:"weight"`
}

// Snapshot captures the model's current tree.
func (m *Model[A]) Snapshot(name string) Snapshot[A] {
	nodes := make([]ExportedNode, 0, max(len(m.nodes)-1, 0))
	parents := make([]int, len(m.nodes))
	for i, node := range m.nodes {
		for _, idx := range node.order {
			parents[idx] = i
		}
	}
	for i := 1; i < len(m.nodes); i++ {
		nodes = append(nodes, ExportedNode{
			Parent: parents[i],
			Atom:   m.nodes[i].atom,
			Weight: m.nodes[i].weight,
		})
	}
	vocab := make([]A, len(m.vocab))
	copy(vocab, m.vocab)

	return Snapshot[A]{
		Name:       name,
		Depth:      m.depth,
		Sequences:  m.sequences,
		Vocabulary: vocab,
		Nodes:      nodes,
	}
}

// Merge adds the windows of a snapshot to the model. Counts of windows
// present in both are summed. The depths must match, and the snapshot is
// checked in full before the model is touched, so a rejected snapshot leaves
// the model unchanged.
func (m *Model[A]) Merge(ctx context.Context, snap Snapshot[A]) error {
	if snap.Depth != m.depth {
		return fmt.Errorf("merge depth %d into depth %d: %w", snap.Depth, m.depth, ErrDepthMismatch)
	}
	if err := snap.validate(); err != nil {
		return err
	}

	vocabIDMap := make([]int, len(snap.Vocabulary)) // old_id -> new_id
	vocabIDMap[StartID] = StartID
	vocabIDMap[EndID] = EndID
	for oldID := 2; oldID < len(snap.Vocabulary); oldID++ {
		vocabIDMap[oldID] = m.intern(snap.Vocabulary[oldID])
	}

	nodeIDMap := make([]int, len(snap.Nodes)+1)
	nodeIDMap[0] = rootNode
	for i, node := range snap.Nodes {
		idx := m.childOrCreate(nodeIDMap[node.Parent], vocabIDMap[node.Atom])
		m.nodes[idx].weight += node.Weight
		nodeIDMap[i+1] = idx
	}
	m.sequences += snap.Sequences

	m.logger.InfoContext(ctx, "Model merged",
		slog.String("model_name", snap.Name),
		slog.Int("vocab_items_merged", len(snap.Vocabulary)-2),
		slog.Int("nodes_merged", len(snap.Nodes)),
		slog.Int("sequences_merged", snap.Sequences),
	)
	return nil
}

// validate checks that the snapshot describes a tree a model could have
// recorded itself: parents listed first, known atoms, positive counts, no
// window longer than the depth, START only as the first atom, nothing after
// END, every window's suffix recorded, and every open window shorter than
// the depth continued. The last two keep generation free of dead ends.
func (snap Snapshot[A]) validate() error {
	if len(snap.Vocabulary) < 2 {
		return fmt.Errorf("%w: vocabulary has %d entries, sentinels missing", ErrInvalidSnapshot, len(snap.Vocabulary))
	}
	if snap.Sequences < 0 {
		return fmt.Errorf("%w: negative sequence count %d", ErrInvalidSnapshot, snap.Sequences)
	}

	type edge struct{ parent, atom int }
	n := len(snap.Nodes) + 1 // index 0 is the root
	level := make([]int, n)
	children := make(map[edge]int, len(snap.Nodes))
	hasChild := make([]bool, n)
	for i, node := range snap.Nodes {
		id := i + 1
		switch {
		case node.Parent < 0 || node.Parent > i:
			return fmt.Errorf("%w: node %d has parent %d listed after it", ErrInvalidSnapshot, id, node.Parent)
		case node.Atom < 0 || node.Atom >= len(snap.Vocabulary):
			return fmt.Errorf("%w: node %d atom %d not found in vocabulary", ErrInvalidSnapshot, id, node.Atom)
		case node.Weight < 1:
			return fmt.Errorf("%w: node %d has weight %d", ErrInvalidSnapshot, id, node.Weight)
		case node.Parent != 0 && snap.Nodes[node.Parent-1].Atom == EndID:
			return fmt.Errorf("%w: node %d follows the end sentinel", ErrInvalidSnapshot, id)
		case node.Parent != 0 && node.Atom == StartID:
			return fmt.Errorf("%w: node %d places the start sentinel inside a window", ErrInvalidSnapshot, id)
		}
		level[id] = level[node.Parent] + 1
		if level[id] > snap.Depth {
			return fmt.Errorf("%w: node %d is a window of length %d, deeper than %d", ErrInvalidSnapshot, id, level[id], snap.Depth)
		}
		children[edge{node.Parent, node.Atom}] = id
		hasChild[node.Parent] = true
	}

	suffix := make([]int, n)
	for i, node := range snap.Nodes {
		id := i + 1
		if level[id] > 1 {
			s, ok := children[edge{suffix[node.Parent], node.Atom}]
			if !ok {
				return fmt.Errorf("%w: node %d has no recorded suffix window", ErrInvalidSnapshot, id)
			}
			suffix[id] = s
		}
		if level[id] < snap.Depth && node.Atom != EndID && !hasChild[id] {
			return fmt.Errorf("%w: node %d is never continued", ErrInvalidSnapshot, id)
		}
	}
	return nil
}

// ExportModel writes the model as indented JSON to w.
func (m *Model[A]) ExportModel(ctx context.Context, name string, w io.Writer) error {
	snap := m.Snapshot(name)

	m.logger.InfoContext(ctx, "Model exported",
		slog.String("model_name", name),
		slog.Int("vocab_items_exported", len(snap.Vocabulary)-2),
		slog.Int("nodes_exported", len(snap.Nodes)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snap)
}

// ImportModel reads a JSON snapshot from r and merges it into the model.
func (m *Model[A]) ImportModel(ctx context.Context, r io.Reader) error {
	var snap Snapshot[A]
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode json model: %w", err)
	}
	return m.Merge(ctx, snap)
}

// LoadModel builds a new model from a JSON snapshot and returns it with the
// snapshot's name.
func LoadModel[A comparable](ctx context.Context, r io.Reader) (*Model[A], string, error) {
	var snap Snapshot[A]
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, "", fmt.Errorf("failed to decode json model: %w", err)
	}
	m, err := NewModel[A](snap.Depth)
	if err != nil {
		return nil, "", err
	}
	if err = m.Merge(ctx, snap); err != nil {
		return nil, "", err
	}
	return m, snap.Name, nil
}

// SaveSnapshotFile exports the model to path, replacing any existing file
// atomically.
func SaveSnapshotFile[A comparable](ctx context.Context, m *Model[A], name, path string) error {
	var buf bytes.Buffer
	if err := m.ExportModel(ctx, name, &buf); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}
