package statemachine

import (
	"fmt"
)

// Transition is a weighted directed edge. A nil From is the START sentinel
// and a nil To is the END sentinel.
type Transition[S comparable] struct {
	From   *S      `json:"from"`
	To     *S      `json:"to"`
	Weight float64 `json:"weight"`
}

// NewTransition returns the edge from -> to.
func NewTransition[S comparable](from, to S, weight float64) Transition[S] {
	return Transition[S]{From: &from, To: &to, Weight: weight}
}

// StartTransition returns the edge START -> to.
func StartTransition[S comparable](to S, weight float64) Transition[S] {
	return Transition[S]{To: &to, Weight: weight}
}

// EndTransition returns the edge from -> END.
func EndTransition[S comparable](from S, weight float64) Transition[S] {
	return Transition[S]{From: &from, Weight: weight}
}

// IsStart reports whether the edge leaves START.
func (t Transition[S]) IsStart() bool { return t.From == nil }

// IsEnd reports whether the edge enters END.
func (t Transition[S]) IsEnd() bool { return t.To == nil }

// Equal compares endpoints by value and weights exactly.
func (t Transition[S]) Equal(o Transition[S]) bool {
	return samePtr(t.From, o.From) && samePtr(t.To, o.To) && t.Weight == o.Weight
}

func (t Transition[S]) String() string {
	return fmt.Sprintf("%s->%s^%g", endpoint(t.From), endpoint(t.To), t.Weight)
}

func samePtr[S comparable](a, b *S) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func endpoint[S comparable](s *S) string {
	if s == nil {
		return nullState
	}
	return fmt.Sprint(*s)
}

// kind distinguishes real states from the sentinels inside the graph.
type kind uint8

const (
	kindState kind = iota
	kindStart
	kindEnd
)

type node[S comparable] struct {
	kind  kind
	state S
}

func stateNode[S comparable](s S) node[S] { return node[S]{kind: kindState, state: s} }

func fromNode[S comparable](s *S) node[S] {
	if s == nil {
		return node[S]{kind: kindStart}
	}
	return stateNode(*s)
}

func toNode[S comparable](s *S) node[S] {
	if s == nil {
		return node[S]{kind: kindEnd}
	}
	return stateNode(*s)
}

func (n node[S]) ptr() *S {
	if n.kind != kindState {
		return nil
	}
	s := n.state
	return &s
}

func (n node[S]) String() string {
	switch n.kind {
	case kindStart:
		return "START"
	case kindEnd:
		return "END"
	default:
		return fmt.Sprint(n.state)
	}
}
