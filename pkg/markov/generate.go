package markov

import (
	"fmt"
	"math"
	"sort"

	"github.com/CTAG07/Nepenthes/pkg/sample"
)

// choice is a candidate next atom and the number of times it followed the
// current context.
type choice struct {
	id     int
	weight int
}

// generateOptions holds the settings shared by the generate functions.
type generateOptions struct {
	maxLength   int
	temperature float64
	topK        int
}

func defaultGenerateOptions() *generateOptions {
	return &generateOptions{
		maxLength:   0,
		temperature: 1.0,
		topK:        0,
	}
}

// GenerateOption is a function that configures generation parameters.
type GenerateOption func(*generateOptions)

// WithMaxLength caps the number of atoms in a generated sequence; the
// sequence is cut short as if the end sentinel had been drawn. A value of 0
// disables the cap.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) { o.maxLength = n }
}

// WithTemperature adjusts the randomness of atom selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 flatten the distribution, values < 1.0 sharpen it.
// A value of 0 or less always picks the most frequent continuation.
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts selection to the k most frequent continuations at each
// step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// Generate produces one new sequence. The sequence is never empty.
func (m *Model[A]) Generate(src sample.Source, opts ...GenerateOption) ([]A, error) {
	options := defaultGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}
	ids, err := m.generateChain(src, nil, options)
	if err != nil {
		return nil, err
	}
	return m.atoms(ids), nil
}

// GenerateFrom continues the given prefix. The returned sequence starts with
// the prefix. Every atom of the prefix must be known to the model, and the
// prefix's trailing context must have been observed.
func (m *Model[A]) GenerateFrom(src sample.Source, prefix []A, opts ...GenerateOption) ([]A, error) {
	options := defaultGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}
	seed := make([]int, len(prefix))
	for i, atom := range prefix {
		id, ok := m.ids[atom]
		if !ok {
			return nil, fmt.Errorf("prefix atom %v: %w", atom, ErrUnknownAtom)
		}
		seed[i] = id
	}
	ids, err := m.generateChain(src, seed, options)
	if err != nil {
		return nil, err
	}
	return m.atoms(ids), nil
}

// generateChain contains the main loop for generating a sequence of atom IDs.
func (m *Model[A]) generateChain(src sample.Source, seed []int, options *generateOptions) ([]int, error) {
	if m.sequences == 0 {
		return nil, ErrEmptyModel
	}

	if options.maxLength > 0 && len(seed) > options.maxLength {
		seed = seed[:options.maxLength]
	}

	history := make([]int, 0, len(seed)+16)
	history = append(history, StartID)
	history = append(history, seed...)
	out := append([]int(nil), seed...)

	for options.maxLength <= 0 || len(out) < options.maxLength {
		contextLen := min(m.depth-1, len(history))
		context := history[len(history)-contextLen:]
		node, ok := m.lookup(context)
		if !ok {
			return nil, fmt.Errorf("generate after %d atoms: %w", len(out), ErrDeadEnd)
		}

		// The first draw may not end the sequence, or it would be empty.
		next, err := m.chooseNext(node, len(history) == 1, src, options)
		if err != nil {
			return nil, err
		}
		if next == EndID {
			break
		}
		history = append(history, next)
		out = append(out, next)
	}
	return out, nil
}

// chooseNext draws the next atom ID among the children of node.
func (m *Model[A]) chooseNext(node int, forbidEnd bool, src sample.Source, options *generateOptions) (int, error) {
	choices := make([]choice, 0, len(m.nodes[node].order))
	for _, idx := range m.nodes[node].order {
		child := m.nodes[idx]
		// StartID only appears at the root and is never a continuation.
		if child.atom == StartID || (forbidEnd && child.atom == EndID) {
			continue
		}
		choices = append(choices, choice{id: child.atom, weight: child.weight})
	}
	if len(choices) == 0 {
		if forbidEnd {
			return 0, fmt.Errorf("no non-empty training sequence: %w", ErrEmptyModel)
		}
		return 0, ErrDeadEnd
	}

	// topK filtering
	if options.topK > 0 && options.topK < len(choices) {
		sort.SliceStable(choices, func(i, j int) bool {
			return choices[i].weight > choices[j].weight
		})
		choices = choices[:options.topK]
	}

	scaled, ok := scaleLogWeights(choices, options.temperature)
	if !ok { // Deterministic
		best := choices[0]
		for _, c := range choices[1:] {
			if c.weight > best.weight {
				best = c
			}
		}
		return best.id, nil
	}

	set := sample.NewSet[int](false)
	for i, c := range choices {
		weight := float64(c.weight)
		if scaled != nil {
			weight = scaled[i]
		}
		if err := set.Add(c.id, weight); err != nil {
			return 0, fmt.Errorf("choose next atom: %w", err)
		}
	}
	return set.Draw(src)
}

// scaleLogWeights reshapes the choice weights for temperature. Log-weights
// are scaled by 1/temperature and shifted by their maximum to keep the
// exponentials in range. It returns nil weights for a temperature of 1, and
// false when the temperature is too small (or not a number) for the scaled
// values to stay finite, in which case the most frequent choice wins.
func scaleLogWeights(choices []choice, temperature float64) ([]float64, bool) {
	if temperature == 1.0 {
		return nil, true
	}
	if !(temperature > 0) {
		return nil, false
	}
	inverse := 1 / temperature
	scaled := make([]float64, len(choices))
	maxLog := math.Inf(-1)
	for i, c := range choices {
		scaled[i] = math.Log(float64(c.weight)) * inverse
		if math.IsInf(scaled[i], 0) || math.IsNaN(scaled[i]) {
			return nil, false
		}
		maxLog = math.Max(maxLog, scaled[i])
	}
	for i := range scaled {
		scaled[i] = math.Exp(scaled[i] - maxLog)
	}
	return scaled, true
}

func (m *Model[A]) atoms(ids []int) []A {
	out := make([]A, len(ids))
	for i, id := range ids {
		out[i] = m.vocab[id]
	}
	return out
}
