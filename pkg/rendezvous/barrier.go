package rendezvous

import (
	"context"

	"github.com/sasha-s/go-deadlock"
)

// Barrier is a reusable two-phase rendezvous whose party size may change
// between rounds. Every participant calls Converge, then Diverge, then
// Arrive, always with the same party count for the round.
//
// The counter has its own mutex, separate from any lock guarding game
// state, and it is never held while waiting for a permit.
type Barrier struct {
	mutex deadlock.Mutex
	count int

	converged *Permits
	diverged  *Permits
}

func NewBarrier() *Barrier {
	return &Barrier{
		converged: NewPermits(0),
		diverged:  NewPermits(0),
	}
}

// Converge blocks until all parties have called Converge.
func (b *Barrier) Converge(ctx context.Context, parties int) error {
	b.mutex.Lock()
	b.count++
	if b.count == parties {
		b.converged.Release(parties)
	}
	b.mutex.Unlock()

	return b.converged.Acquire(ctx)
}

// Diverge blocks until all parties have called Diverge. Once it returns
// the first phase can be used again.
func (b *Barrier) Diverge(ctx context.Context, parties int) error {
	b.mutex.Lock()
	b.count--
	if b.count == 0 {
		b.diverged.Release(parties)
	}
	b.mutex.Unlock()

	return b.diverged.Acquire(ctx)
}

// Arrive records that the caller is done with the round. It reports true
// for exactly one caller, the last of the parties to arrive, and resets
// the counter for the next round.
func (b *Barrier) Arrive(parties int) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.count++
	if b.count != parties {
		return false
	}

	b.count = 0
	return true
}

// Count returns the current value of the rendezvous counter.
func (b *Barrier) Count() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.count
}
