package statemachine

import (
	"fmt"

	"github.com/CTAG07/Nepenthes/pkg/sample"
)

// validate checks that generation from START terminates with probability
// one: START has successors, some edge enters END, and every state reachable
// from START can still reach END.
func (m *Machine[S]) validate() error {
	start := node[S]{kind: kindStart}
	end := node[S]{kind: kindEnd}

	if set, ok := m.graph[start]; !ok || set.Len() == 0 {
		return ErrNoStartState
	}

	hasEnd := false
	for _, set := range m.graph {
		if set.Contains(end) {
			hasEnd = true
			break
		}
	}
	if !hasEnd {
		return ErrNoTerminalState
	}

	canEnd := m.terminating()
	for _, n := range m.reachable(start) {
		if !canEnd[n] {
			return fmt.Errorf("%w: state %v never reaches END", ErrNoTerminalState, n)
		}
	}
	return nil
}

// successors returns the targets of from that can actually be drawn.
// Zero-weight targets are skipped unless the whole set is zero-weighted, in
// which case the uniform fallback makes all of them drawable.
func successors[S comparable](set *sample.Set[node[S]]) []node[S] {
	out := make([]node[S], 0, set.Len())
	uniform := set.TotalWeight() == 0
	for i := 0; i < set.Len(); i++ {
		if uniform || set.Weight(i) > 0 {
			out = append(out, set.Value(i))
		}
	}
	return out
}

// reachable lists the nodes reachable from n in breadth-first order,
// excluding n itself and END.
func (m *Machine[S]) reachable(n node[S]) []node[S] {
	seen := map[node[S]]bool{n: true}
	queue := []node[S]{n}
	var out []node[S]
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		set, ok := m.graph[cur]
		if !ok {
			continue
		}
		for _, next := range successors(set) {
			if seen[next] || next.kind == kindEnd {
				continue
			}
			seen[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}

// terminating returns the set of nodes from which END can be reached. States
// without outgoing transitions terminate implicitly.
func (m *Machine[S]) terminating() map[node[S]]bool {
	canEnd := map[node[S]]bool{{kind: kindEnd}: true}
	for _, set := range m.graph {
		for i := 0; i < set.Len(); i++ {
			if v := set.Value(i); v.kind == kindState {
				if _, ok := m.graph[v]; !ok {
					canEnd[v] = true
				}
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, from := range m.sources {
			if canEnd[from] {
				continue
			}
			for _, to := range successors(m.graph[from]) {
				if canEnd[to] {
					canEnd[from] = true
					changed = true
					break
				}
			}
		}
	}
	return canEnd
}
