package game

import (
	"context"

	"github.com/cfoust/yard/pkg/rules"

	"github.com/rs/zerolog"
)

// Moderator prepares every round of a game. It wakes once all workers
// have finished the previous round and, before any of them can enter the
// next one, fixes how many take part and opens the admission gate.
type Moderator struct {
	state  *State
	logger zerolog.Logger
}

func NewModerator(state *State, logger zerolog.Logger) *Moderator {
	return &Moderator{
		state:  state,
		logger: logger,
	}
}

// Run returns nil once the game is dead and no worker remains, or the
// context error if cancelled first.
func (m *Moderator) Run(ctx context.Context) error {
	s := m.state

	for {
		if err := s.moderatorRelease.Acquire(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s.Lock()
		if s.totalActive == 0 {
			s.MarkDead(rules.StatusAbandoned)
		}

		if s.dead && s.totalActive == 0 {
			round := s.round
			s.Unlock()
			m.logger.Debug().Int("round", round).Msg("moderator done")
			return nil
		}

		// Workers still around after the game died get one more round to
		// leave in. Hanging up on them means none waits for its client.
		if s.dead {
			s.hangUp()
		}

		s.activeThisRound = s.totalActive
		registrations := s.admitPending()
		s.round++

		event := RoundEvent{
			Round:         s.round,
			Active:        s.activeThisRound,
			Registrations: registrations,
			Quits:         s.quitCount,
			Dispatched:    s.dispatched,
			Dead:          s.dead,
		}

		s.gate.Open(registrations, s.activeThisRound)
		s.Unlock()

		m.logger.Debug().
			Int("round", event.Round).
			Int("active", event.Active).
			Int("registrations", event.Registrations).
			Msg("round ready")
		s.events.Publish(event)
	}
}
