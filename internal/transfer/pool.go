package transfer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs chunk tasks with at most threads+1 in flight. One slot is meant
// for the token watchdog: the driver takes it with Reserve for the duration
// of a transfer, leaving threads slots for chunks.
type Pool struct {
	sem     *semaphore.Weighted
	threads int
}

// NewPool creates a pool for the given thread count (minimum 1).
func NewPool(threads int) *Pool {
	threads = max(threads, 1)

	return &Pool{sem: semaphore.NewWeighted(int64(threads) + 1), threads: threads}
}

// Threads is the number of worker slots excluding the reserved one.
func (p *Pool) Threads() int {
	return p.threads
}

// Reserve holds one slot until release is called.
func (p *Pool) Reserve(ctx context.Context) (release func(), err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var once sync.Once

	return func() { once.Do(func() { p.sem.Release(1) }) }, nil
}

// Submit blocks until a slot is free, then runs task in its own goroutine.
// Errors, including panics and a canceled wait, are reported through the
// returned Future.
func (p *Pool) Submit(ctx context.Context, task func(context.Context) error) *Future {
	f := &Future{done: make(chan struct{})}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		f.err = err
		close(f.done)

		return f
	}

	go func() {
		defer close(f.done)
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("chunk task panicked: %v", r)
			}
		}()

		f.err = task(ctx)
	}()

	return f
}

// Future is the result of one submitted task.
type Future struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task finished and returns its error.
func (f *Future) Wait() error {
	<-f.done

	return f.err
}
