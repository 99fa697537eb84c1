package generator

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countdown yields n, n-1, ..., 1 and then io.EOF.
type countdown struct {
	start, next int
	fail        error
	state       State
}

func (c *countdown) Init(context.Context) error {
	if err := c.state.CheckInit(); err != nil {
		return err
	}
	c.next = c.start
	c.state = Ready
	return nil
}

func (c *countdown) Generate() (int, error) {
	if err := c.state.CheckReady(); err != nil {
		return 0, err
	}
	if c.fail != nil && c.next == 1 {
		return 0, c.fail
	}
	if c.next == 0 {
		return 0, io.EOF
	}
	c.next--
	return c.next + 1, nil
}

func (c *countdown) Reset() error {
	if err := c.state.CheckReady(); err != nil {
		return err
	}
	c.next = c.start
	return nil
}

func (c *countdown) Close() error {
	c.state = Closed
	return nil
}

func (c *countdown) Capabilities() Capabilities { return Capabilities{} }

func TestStateChecks(t *testing.T) {
	testCases := []struct {
		state     State
		readyErr  error
		initErr   error
		formatted string
	}{
		{Uninitialized, ErrNotInitialized, nil, "uninitialized"},
		{Ready, nil, ErrAlreadyInitialized, "ready"},
		{Closed, ErrClosed, ErrClosed, "closed"},
	}
	for _, tc := range testCases {
		t.Run(tc.formatted, func(t *testing.T) {
			assert.Equal(t, tc.formatted, tc.state.String())
			if tc.readyErr == nil {
				assert.NoError(t, tc.state.CheckReady())
			} else {
				assert.ErrorIs(t, tc.state.CheckReady(), tc.readyErr)
				assert.ErrorIs(t, tc.state.CheckReady(), ErrIllegalState)
			}
			if tc.initErr == nil {
				assert.NoError(t, tc.state.CheckInit())
			} else {
				assert.ErrorIs(t, tc.state.CheckInit(), tc.initErr)
			}
		})
	}
}

func TestTake(t *testing.T) {
	g := &countdown{start: 3}
	require.NoError(t, g.Init(context.Background()))

	values, err := Take[int](g, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, values)

	require.NoError(t, g.Reset())
	values, err = Take[int](g, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, values)

	values, err = Take[int](g, 0)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestTakeError(t *testing.T) {
	boom := errors.New("boom")
	g := &countdown{start: 3, fail: boom}
	require.NoError(t, g.Init(context.Background()))

	values, err := Take[int](g, 10)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{3, 2}, values)
}

func TestStream(t *testing.T) {
	g := &countdown{start: 5}
	require.NoError(t, g.Init(context.Background()))

	values, errc := Stream[int](context.Background(), g, 4)
	var got []int
	for v := range values {
		got = append(got, v)
	}
	assert.Equal(t, []int{5, 4, 3, 2}, got)
	assert.NoError(t, <-errc)
}

func TestStreamCancelled(t *testing.T) {
	g := &countdown{start: 100}
	require.NoError(t, g.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	values, errc := Stream[int](ctx, g, 100)
	<-values
	cancel()
	for range values {
	}
	assert.NoError(t, <-errc)
}

func TestStreamUninitialized(t *testing.T) {
	g := &countdown{start: 1}
	values, errc := Stream[int](context.Background(), g, 1)
	for range values {
	}
	assert.ErrorIs(t, <-errc, ErrNotInitialized)
}
