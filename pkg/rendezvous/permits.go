package rendezvous

import (
	"context"
	"math"

	"golang.org/x/sync/semaphore"
)

const capacity = math.MaxInt64

// Permits is a counting semaphore that starts with a fixed number of
// permits and can be topped up by any amount at any time. Unlike a mutex,
// the goroutine that releases permits does not have to be one that
// acquired them.
//
// It is built on a weighted semaphore whose capacity is almost entirely
// held from construction: releasing n returns n units to the pool and
// acquiring takes one back.
type Permits struct {
	w *semaphore.Weighted
}

func NewPermits(initial int) *Permits {
	if initial < 0 {
		initial = 0
	}

	w := semaphore.NewWeighted(capacity)
	// Never blocks: the semaphore is fresh.
	_ = w.Acquire(context.Background(), capacity-int64(initial))

	return &Permits{w: w}
}

// Acquire takes one permit, blocking until one is available or ctx is
// done. Waiters are served in FIFO order. A done ctx fails even if a
// permit is available.
func (p *Permits) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.w.Acquire(ctx, 1)
}

// TryAcquire takes one permit without blocking.
func (p *Permits) TryAcquire() bool {
	return p.w.TryAcquire(1)
}

// Release makes n more permits available.
func (p *Permits) Release(n int) {
	if n <= 0 {
		return
	}
	p.w.Release(int64(n))
}
