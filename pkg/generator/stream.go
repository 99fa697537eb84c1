package generator

import (
	"context"
	"errors"
	"io"
)

// Take calls Generate up to limit times and returns what was produced. It
// stops early, without error, when the generator reports io.EOF. A limit of
// zero or less returns nothing.
func Take[V any](g Generator[V], limit int) ([]V, error) {
	out := make([]V, 0, max(limit, 0))
	for len(out) < limit {
		v, err := g.Generate()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Stream runs g in a goroutine and delivers up to limit values on the
// returned channel. The value channel is closed when generation ends, the
// generator reports io.EOF, or ctx is cancelled. Any other error is sent on
// the error channel, which is closed after the value channel.
//
// The generator must not be used by anyone else until both channels close.
func Stream[V any](ctx context.Context, g Generator[V], limit int) (<-chan V, <-chan error) {
	values := make(chan V)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(values)

		for i := 0; i < limit; i++ {
			v, err := g.Generate()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errc <- err
				return
			}
			select {
			case <-ctx.Done():
				return
			case values <- v:
			}
		}
	}()

	return values, errc
}
