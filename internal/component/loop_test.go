package component

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopDrainRunsInOrder(t *testing.T) {
	l := NewLoop(0)
	defer l.Close()

	var got []int
	for i := 0; i < 3; i++ {
		i := i
		require.True(t, l.Post(func() {
			got = append(got, i)
			if i == 0 {
				l.Post(func() { got = append(got, 99) })
			}
		}))
	}

	assert.Equal(t, 4, l.Drain())
	assert.Equal(t, []int{0, 1, 2, 99}, got)
	assert.Equal(t, 0, l.Drain())
	assert.False(t, l.Post(nil))
}

func TestLoopRunAndCall(t *testing.T) {
	l := NewLoop(4)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = l.Run(ctx)
	}()

	boom := errors.New("boom")
	assert.NoError(t, l.Call(ctx, func() error { return nil }))
	assert.Equal(t, boom, l.Call(ctx, func() error { return boom }))

	cancel()
	wg.Wait()
	assert.ErrorIs(t, runErr, context.Canceled)
	l.Close()
}

func TestLoopClose(t *testing.T) {
	l := NewLoop(1)
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	l.Close()
	l.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), func() error { return nil }), context.Canceled)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "unmounted", PhaseUnmounted.String())
	assert.Equal(t, "rendered", PhaseRendered.String())
	assert.Equal(t, "destroyed", PhaseDestroyed.String())
	assert.Equal(t, "unknown", Phase(-1).String())
}
