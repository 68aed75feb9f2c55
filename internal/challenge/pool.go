package challenge

import (
	"context"
	"fmt"
	"sync"
)

// DefaultWorkers bounds concurrent solves.
const DefaultWorkers = 2

// Pool runs blocking solve calls on a fixed number of slots. A slot stays held until the
// solve goroutine returns, even when the caller stops waiting.
type Pool struct {
	slots     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool creates a pool with size slots; size <= 0 uses DefaultWorkers.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	return &Pool{
		slots: make(chan struct{}, size),
		done:  make(chan struct{}),
	}
}

// Size is the number of slots.
func (p *Pool) Size() int { return cap(p.slots) }

// InFlight is the number of slots currently held.
func (p *Pool) InFlight() int { return len(p.slots) }

// Do runs fn on a pool slot and waits for its result or for ctx to end.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if p.closed() {
		return "", ErrPoolClosed
	}

	select {
	case p.slots <- struct{}{}:
	case <-p.done:
		return "", ErrPoolClosed
	case <-ctx.Done():
		return "", fmt.Errorf("wait for solver slot: %w", ctx.Err())
	}

	type result struct {
		token string
		err   error
	}
	out := make(chan result, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.slots }()
		token, err := fn(ctx)
		out <- result{token: token, err: err}
	}()

	select {
	case r := <-out:
		return r.token, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("solve abandoned: %w", ctx.Err())
	}
}

// Close stops accepting work. It is idempotent and does not wait for running solves.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Wait blocks until every started solve has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
