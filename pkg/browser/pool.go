package browser

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/cruciblehq/crucible/pkg/models"
)

// ErrPoolExhausted is returned when every context slot is taken. Callers
// retry with back-off; the condition clears as running tests finish.
var ErrPoolExhausted = fmt.Errorf("browser context limit reached: %w", models.ErrCapacity)

// Pool bounds the number of live browser contexts.
type Pool struct {
	sem      *semaphore.Weighted
	capacity int
	active   atomic.Int64
}

// NewPool creates a pool with the given context cap.
func NewPool(maxContexts int) *Pool {
	if maxContexts <= 0 {
		maxContexts = 1
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(maxContexts)),
		capacity: maxContexts,
	}
}

// TryAcquire claims a slot without blocking. ErrPoolExhausted signals the
// cap is hit. The returned release function is idempotent.
func (p *Pool) TryAcquire() (func(), error) {
	if !p.sem.TryAcquire(1) {
		return nil, ErrPoolExhausted
	}
	return p.releaseFunc(), nil
}

// Acquire blocks until a slot frees up or ctx ends. The responsive sweep
// uses this path so parallel viewport checks queue rather than fail.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return p.releaseFunc(), nil
}

func (p *Pool) releaseFunc() func() {
	p.active.Add(1)
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			p.active.Add(-1)
			p.sem.Release(1)
		}
	}
}

// Active reports the number of claimed slots.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Capacity reports the configured cap.
func (p *Pool) Capacity() int {
	return p.capacity
}
