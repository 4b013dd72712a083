package rendezvous

import "context"

// Gate is the admission gate in front of every round. The outer permits
// let a newcomer register with the game; the inner permits let any
// participant, new or old, enter the round. Both are handed out by whoever
// prepares the round.
type Gate struct {
	outer *Permits
	inner *Permits
}

// NewGate returns a gate holding the given number of outer and inner
// permits.
func NewGate(outer, inner int) *Gate {
	return &Gate{
		outer: NewPermits(outer),
		inner: NewPermits(inner),
	}
}

// Register blocks until the caller may join the roster.
func (g *Gate) Register(ctx context.Context) error {
	return g.outer.Acquire(ctx)
}

// Enter blocks until the caller may take part in the current round.
func (g *Gate) Enter(ctx context.Context) error {
	return g.inner.Acquire(ctx)
}

// Open hands out permits for the next round: registrations for newcomers
// and entries for everyone expected to play.
func (g *Gate) Open(registrations, entries int) {
	g.outer.Release(registrations)
	g.inner.Release(entries)
}
