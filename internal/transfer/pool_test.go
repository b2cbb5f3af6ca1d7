package transfer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_LimitsConcurrency(t *testing.T) {
	p := NewPool(2)

	var running, peak atomic.Int32

	futures := make([]*Future, 0, 10)

	for range 10 {
		futures = append(futures, p.Submit(t.Context(), func(context.Context) error {
			n := running.Add(1)
			defer running.Add(-1)

			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)

			return nil
		}))
	}

	for _, f := range futures {
		require.NoError(t, f.Wait())
	}

	// threads plus the reserved slot
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPool_ReserveLeavesThreads(t *testing.T) {
	p := NewPool(1)

	release, err := p.Reserve(t.Context())
	require.NoError(t, err)

	block := make(chan struct{})
	first := p.Submit(t.Context(), func(context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	second := p.Submit(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, second.Wait(), context.DeadlineExceeded)

	close(block)
	require.NoError(t, first.Wait())

	release()
	release()

	assert.Equal(t, 1, p.Threads())
}

func TestPool_ReportsErrorsAndPanics(t *testing.T) {
	p := NewPool(1)
	boom := errors.New("boom")

	assert.ErrorIs(t, p.Submit(t.Context(), func(context.Context) error { return boom }).Wait(), boom)

	err := p.Submit(t.Context(), func(context.Context) error { panic("bad chunk") }).Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad chunk")
}

func TestNewPool_MinimumOneThread(t *testing.T) {
	assert.Equal(t, 1, NewPool(0).Threads())
	assert.Equal(t, 1, NewPool(-3).Threads())
}
