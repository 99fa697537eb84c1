package markov

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	Depth          int // The maximum recorded window length.
	Sequences      int // The number of training sequences added.
	Nodes          int // The number of distinct recorded windows.
	VocabSize      int // The number of distinct atoms, sentinels excluded.
	StartingAtoms  int // The number of distinct atoms that can start a sequence.
	TotalFrequency int // The sum of all window counts.
}

// Stats returns a snapshot of the model's statistics.
func (m *Model[A]) Stats() ModelStats {
	stats := ModelStats{
		Depth:     m.depth,
		Sequences: m.sequences,
		Nodes:     max(len(m.nodes)-1, 0),
		VocabSize: max(len(m.vocab)-2, 0),
	}
	for i := 1; i < len(m.nodes); i++ {
		stats.TotalFrequency += m.nodes[i].weight
	}

	if len(m.nodes) == 0 {
		return stats
	}
	if m.depth == 1 {
		// Without context every atom is a possible start.
		stats.StartingAtoms = stats.VocabSize
		return stats
	}
	if start, ok := m.child(rootNode, StartID); ok {
		for _, idx := range m.nodes[start].order {
			if m.nodes[idx].atom != EndID {
				stats.StartingAtoms++
			}
		}
	}
	return stats
}
