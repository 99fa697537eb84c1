package generator

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrIllegalState is wrapped by every lifecycle violation, so callers can
	// test for the whole family with errors.Is.
	ErrIllegalState = errors.New("illegal generator state")
	// ErrNotInitialized is returned when Generate or Reset is called before Init.
	ErrNotInitialized = fmt.Errorf("%w: not initialized", ErrIllegalState)
	// ErrAlreadyInitialized is returned when Init is called more than once.
	ErrAlreadyInitialized = fmt.Errorf("%w: already initialized", ErrIllegalState)
	// ErrClosed is returned by any call made after Close.
	ErrClosed = fmt.Errorf("%w: closed", ErrIllegalState)
)

// Capabilities advise the caller on how an instance may be shared between
// workers. They are hints only; the generator itself never locks.
type Capabilities struct {
	// Parallelizable reports that independent instances built from the same
	// configuration may run side by side, one per worker.
	Parallelizable bool
	// ThreadSafe reports that a single instance may be shared by concurrent
	// callers without external synchronization.
	ThreadSafe bool
}

// Generator is the lifecycle contract implemented by every engine.
//
// Generate returns io.EOF once a finite generator is exhausted. Reset
// returns the generator to its post-Init state; for stochastic entry points
// this is a statistical restart, not a replay.
type Generator[V any] interface {
	Init(ctx context.Context) error
	Generate() (V, error)
	Reset() error
	Close() error
	Capabilities() Capabilities
}

// State is the lifecycle tag carried by every generator instance.
type State int

const (
	Uninitialized State = iota
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CheckReady returns nil if a generator in state s may produce values.
func (s State) CheckReady() error {
	switch s {
	case Ready:
		return nil
	case Closed:
		return ErrClosed
	default:
		return ErrNotInitialized
	}
}

// CheckInit returns nil if a generator in state s may be initialized.
func (s State) CheckInit() error {
	switch s {
	case Uninitialized:
		return nil
	case Closed:
		return ErrClosed
	default:
		return ErrAlreadyInitialized
	}
}
