package statemachine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned for malformed transition lists. The error message
// quotes the offending item.
var ErrSyntax = errors.New("transition syntax error")

// nullState is the notation for START (as a source) and END (as a target).
const nullState = "null"

const (
	arrow         = "->"
	weightMarker  = "^"
	itemSeparator = ","
)

// ParseTransitions parses a comma separated list of edges of the form
// "from->to^weight". The weight is optional and defaults to 1. An endpoint
// written as "null" or left empty stands for START on the left and END on the
// right, e.g. "null->A, A->B^2, B->null".
func ParseTransitions(text string) ([]Transition[string], error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	items := strings.Split(text, itemSeparator)
	out := make([]Transition[string], 0, len(items))
	for _, item := range items {
		t, err := parseTransition(item)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func parseTransition(item string) (Transition[string], error) {
	trimmed := strings.TrimSpace(item)
	if trimmed == "" {
		return Transition[string]{}, fmt.Errorf("%w: empty item in %q", ErrSyntax, item)
	}

	weight := 1.0
	if i := strings.LastIndex(trimmed, weightMarker); i >= 0 {
		w, err := strconv.ParseFloat(strings.TrimSpace(trimmed[i+1:]), 64)
		if err != nil {
			return Transition[string]{}, fmt.Errorf("%w: bad weight in %q", ErrSyntax, trimmed)
		}
		weight = w
		trimmed = trimmed[:i]
	}

	from, to, ok := strings.Cut(trimmed, arrow)
	if !ok {
		return Transition[string]{}, fmt.Errorf("%w: missing %q in %q", ErrSyntax, arrow, strings.TrimSpace(item))
	}
	if strings.Contains(to, arrow) {
		return Transition[string]{}, fmt.Errorf("%w: chained arrows in %q", ErrSyntax, strings.TrimSpace(item))
	}
	fromState, err := parseEndpoint(from, item)
	if err != nil {
		return Transition[string]{}, err
	}
	toState, err := parseEndpoint(to, item)
	if err != nil {
		return Transition[string]{}, err
	}
	return Transition[string]{From: fromState, To: toState, Weight: weight}, nil
}

// parseEndpoint accepts exactly the names formatEndpoint can write back.
func parseEndpoint(s, item string) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == nullState {
		return nil, nil
	}
	if !writableName(s) {
		return nil, fmt.Errorf("%w: state %q in %q", ErrSyntax, s, strings.TrimSpace(item))
	}
	return &s, nil
}

// writableName reports whether name survives a format and parse cycle.
func writableName(name string) bool {
	return name != "" && name == strings.TrimSpace(name) && name != nullState &&
		!strings.Contains(name, arrow) && !strings.ContainsAny(name, itemSeparator+weightMarker)
}

// FormatTransitions renders edges in the notation read by ParseTransitions.
// Weights are always written, so parsing the result yields the same tuples.
func FormatTransitions(ts []Transition[string]) (string, error) {
	parts := make([]string, 0, len(ts))
	for _, t := range ts {
		from, err := formatEndpoint(t.From)
		if err != nil {
			return "", err
		}
		to, err := formatEndpoint(t.To)
		if err != nil {
			return "", err
		}
		parts = append(parts, from+arrow+to+weightMarker+strconv.FormatFloat(t.Weight, 'g', -1, 64))
	}
	return strings.Join(parts, itemSeparator+" "), nil
}

func formatEndpoint(s *string) (string, error) {
	if s == nil {
		return nullState, nil
	}
	if !writableName(*s) {
		return "", fmt.Errorf("%w: state %q cannot be written in transition notation", ErrSyntax, *s)
	}
	return *s, nil
}
