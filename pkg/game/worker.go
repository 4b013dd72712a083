package game

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cfoust/yard/pkg/ingress"
	"github.com/cfoust/yard/pkg/rules"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// The line a client sends to leave the game.
const QUIT_TOKEN = "Q"

// Worker drives one player's connection through the game, one round per
// loop iteration.
type Worker struct {
	state   *State
	conn    *ingress.Connection
	slot    rules.SlotID
	port    int
	session int

	registered bool
	logger     zerolog.Logger
}

func NewWorker(state *State, conn *ingress.Connection, slot rules.SlotID, port int, session int) *Worker {
	return &Worker{
		state:   state,
		conn:    conn,
		slot:    slot,
		port:    port,
		session: session,
		logger: log.With().
			Int("port", port).
			Int("game", session).
			Str("player", slot.Role()).
			Str("host", conn.Host()).
			Logger(),
	}
}

func (w *Worker) Slot() rules.SlotID {
	return w.slot
}

func (w *Worker) welcome() string {
	w.state.Lock()
	start := w.state.board.Start(w.slot)
	w.state.Unlock()

	return fmt.Sprintf(
		"Welcome. You play %s in Game %d:%d. You start on square %d. Make a move, and wait for feedback",
		w.slot.Role(),
		w.port,
		w.session,
		start,
	)
}

// parseTarget forgives anything that is not a number.
func parseTarget(line string) int {
	target, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return rules.NoMove
	}
	return target
}

// Run plays rounds until the player leaves, the game ends or ctx is
// cancelled. Cancellation is meant for the whole game at once: a worker
// that returns early releases nothing, so its peers must be cancelled too.
func (w *Worker) Run(ctx context.Context) error {
	s := w.state

	stop := context.AfterFunc(ctx, func() {
		w.conn.Close()
	})
	defer stop()
	defer w.conn.Close()

	forced := false
	if err := w.conn.WriteLine(w.welcome()); err != nil {
		s.Lock()
		retracted := s.Retract(w.slot)
		s.Unlock()

		if retracted {
			if w.slot.IsPursued() {
				// Let the moderator see that the game is over.
				s.moderatorRelease.Release(1)
			}
			w.logger.Debug().Err(err).Msg("could not welcome player")
			return nil
		}

		// Already counted into a round: take part in it as a player who
		// has just left.
		w.logger.Debug().Err(err).Msg("could not welcome counted player")
		w.conn.Close()
		forced = true
	}

	w.logger.Info().Msg("player connected")

	for {
		if w.slot.IsPursued() && !w.registered {
			if err := w.join(ctx); err != nil {
				return err
			}
			continue
		}

		quit, err := w.play(ctx, forced)
		if err != nil {
			return err
		}
		if quit {
			w.logger.Info().Msg("player left")
			return nil
		}
	}
}

// join admits the pursued player. It does not play a move.
func (w *Worker) join(ctx context.Context) error {
	s := w.state

	if err := s.gate.Register(ctx); err != nil {
		return err
	}
	if err := s.gate.Enter(ctx); err != nil {
		return err
	}
	w.registered = true

	s.Lock()
	s.BindSlot(w.slot, w)
	s.Unlock()

	s.moderatorRelease.Release(1)
	return nil
}

// play runs one round and reports whether the worker is done.
func (w *Worker) play(ctx context.Context, forced bool) (bool, error) {
	s := w.state

	var (
		// Not playing the next round.
		quit bool
		// The client left; the slot can be freed before the round.
		clientQuit bool
		// The game ended for this player while others read the board;
		// the slot is freed after the round.
		deferred bool
		target   = rules.NoMove
	)

	if forced {
		quit, clientQuit = true, true
	} else {
		line, err := w.conn.ReadLine()
		switch {
		case err != nil:
			w.logger.Debug().Err(err).Msg("lost connection")
			quit, clientQuit = true, true
		case line == QUIT_TOKEN:
			quit, clientQuit = true, true
		default:
			target = parseTarget(line)
		}

		if clientQuit {
			w.conn.Close()
		}
	}

	if !w.registered {
		if err := s.awaitAdmission(ctx, w.slot); err != nil {
			return true, err
		}
		if err := s.gate.Register(ctx); err != nil {
			return true, err
		}
		w.registered = true

		s.Lock()
		if s.dead || clientQuit {
			s.ReleaseSlot(w.slot)
			if !clientQuit {
				quit, clientQuit = true, true
				w.conn.Close()
			}
		} else {
			s.BindSlot(w.slot, w)
		}
		s.Unlock()
	}

	if err := s.gate.Enter(ctx); err != nil {
		return true, err
	}

	s.Lock()
	parties := s.activeThisRound
	if clientQuit {
		s.ReleaseSlot(w.slot)
	} else {
		s.ApplyMove(w.slot, target)
	}
	s.Unlock()

	if err := s.barrier.Converge(ctx, parties); err != nil {
		return true, err
	}

	if !clientQuit {
		s.Lock()
		feedback := s.RenderView(w.slot)
		dead := s.dead
		s.Unlock()

		outcome := rules.StatusAbandoned
		over := dead
		if err := w.conn.WriteLine(feedback); err != nil {
			w.logger.Debug().Err(err).Msg("could not send feedback")
			over = true
		}

		if view, err := rules.ParseView(feedback); err != nil {
			w.logger.Warn().Err(err).Msg("board rendered a bad view")
			over = true
		} else if !view.InPlay() {
			outcome = view.Status
			over = true
		}

		if over {
			quit, deferred = true, true

			s.Lock()
			if w.slot.IsPursued() {
				s.MarkDead(outcome)
			}
			s.Tombstone(w.slot)
			s.Unlock()

			w.conn.Close()
		}
	}

	if quit {
		s.Lock()
		s.totalActive--
		s.quitCount++
		s.Unlock()
	}

	if err := s.barrier.Diverge(ctx, parties); err != nil {
		return true, err
	}

	if deferred {
		s.Lock()
		s.ReleaseSlot(w.slot)
		s.Unlock()
	}

	if s.barrier.Arrive(parties) {
		s.moderatorRelease.Release(1)
	}

	return quit, nil
}
