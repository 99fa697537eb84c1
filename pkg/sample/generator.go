package sample

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/Nepenthes/pkg/generator"
)

// Row is one pre-parsed record of a tabular source: a value and an optional
// weight. Rows without a weight count as weight 1.
type Row[V comparable] struct {
	Value     V
	Weight    float64
	HasWeight bool
}

type options struct {
	unique bool
	src    Source
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*options)

// WithUnique makes the generator reject duplicate values at setup time.
func WithUnique(unique bool) Option {
	return func(o *options) { o.unique = unique }
}

// WithSource sets the random source. Default: DefaultSource().
func WithSource(src Source) Option {
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

// Generator draws values from a weighted set for as long as it is asked to.
// Values are added before Init; Init fails if none were added.
type Generator[V comparable] struct {
	set    *Set[V]
	src    Source
	state  generator.State
	logger *slog.Logger
}

var _ generator.Generator[string] = (*Generator[string])(nil)

// NewGenerator creates an empty weighted value generator.
func NewGenerator[V comparable](opts ...Option) *Generator[V] {
	o := &options{
		src:    DefaultSource(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Generator[V]{
		set:    NewSet[V](o.unique),
		src:    o.src,
		logger: o.logger,
	}
}

// Add registers value with the given weight.
func (g *Generator[V]) Add(value V, weight float64) error {
	if err := g.state.CheckInit(); err != nil {
		return err
	}
	return g.set.Add(value, weight)
}

// AddSamples registers an ordered list of (value, weight) pairs.
func (g *Generator[V]) AddSamples(samples []Sample[V]) error {
	for _, s := range samples {
		if err := g.Add(s.Value, s.Weight); err != nil {
			return err
		}
	}
	return nil
}

// AddRows registers rows read from a tabular source.
func (g *Generator[V]) AddRows(rows []Row[V]) error {
	for i, row := range rows {
		weight := 1.0
		if row.HasWeight {
			weight = row.Weight
		}
		if err := g.Add(row.Value, weight); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// Init validates the configured values and prepares the set for drawing.
func (g *Generator[V]) Init(ctx context.Context) error {
	if err := g.state.CheckInit(); err != nil {
		return err
	}
	if g.set.Len() == 0 {
		return fmt.Errorf("init weighted generator: %w", ErrEmpty)
	}
	if g.set.TotalWeight() == 0 {
		g.logger.WarnContext(ctx, "All weights are zero, drawing uniformly", slog.Int("variety", g.set.Variety()))
	}
	g.set.Normalize()
	g.state = generator.Ready

	g.logger.DebugContext(ctx, "Weighted generator initialized",
		slog.Int("variety", g.set.Variety()),
		slog.Float64("total_weight", g.set.TotalWeight()),
	)
	return nil
}

// Generate draws one value. It never returns io.EOF.
func (g *Generator[V]) Generate() (V, error) {
	if err := g.state.CheckReady(); err != nil {
		var zero V
		return zero, err
	}
	return g.set.Draw(g.src)
}

// Reset has nothing to rewind; it only checks the lifecycle.
func (g *Generator[V]) Reset() error {
	return g.state.CheckReady()
}

// Close releases the sample set. Closing twice is a no-op.
func (g *Generator[V]) Close() error {
	g.state = generator.Closed
	g.set = nil
	return nil
}

// Capabilities reports that instances may run in parallel, and that a single
// instance may be shared when the random source is concurrency safe.
func (g *Generator[V]) Capabilities() generator.Capabilities {
	return generator.Capabilities{
		Parallelizable: true,
		ThreadSafe:     IsConcurrent(g.src),
	}
}

// Variety returns the number of configured values.
func (g *Generator[V]) Variety() int {
	if g.set == nil {
		return 0
	}
	return g.set.Variety()
}
