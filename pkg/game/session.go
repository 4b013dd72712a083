package game

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cfoust/yard/pkg/history"
	"github.com/cfoust/yard/pkg/ingress"
	"github.com/cfoust/yard/pkg/metrics"
	"github.com/cfoust/yard/pkg/rules"
	"github.com/cfoust/yard/pkg/utils"

	"github.com/panjf2000/ants/v2"
	opt "github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	Pursuers     int
	PollInterval time.Duration
	MaxWorkers   int
	DrainTimeout time.Duration
	Ingress      ingress.Options
	NewBoard     func() rules.Board
}

// Session is one game on one port, from the first connection until the
// last player has left.
type Session struct {
	utils.Session

	Port int
	ID   int

	settings Settings
	state    *State
	listener *ingress.Listener
	pool     *ants.Pool
	logger   zerolog.Logger
}

func NewSession(ctx context.Context, port int, id int, settings Settings) *Session {
	session := utils.NewSession(ctx)
	return &Session{
		Session:  session,
		Port:     port,
		ID:       id,
		settings: settings,
		state:    NewState(settings.NewBoard(), settings.Pursuers),
		logger: log.With().
			Int("port", port).
			Int("game", id).
			Str("trace", session.Trace()).
			Logger(),
	}
}

// Listen opens the session's listener. It must be called before Run.
func (s *Session) Listen() error {
	options := s.settings.Ingress
	onReject := options.OnReject
	options.OnReject = func(reason string) {
		metrics.Rejected.WithLabelValues(metrics.Port(s.Port), reason).Inc()
		if onReject != nil {
			onReject(reason)
		}
	}

	listener, err := ingress.Listen(s.Port, options)
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.Port, err)
	}
	s.listener = listener
	return nil
}

func (s *Session) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Session) State() *State {
	return s.state
}

func (s *Session) reject(conn *ingress.Connection, reason string) {
	s.logger.Debug().
		Str("host", conn.Host()).
		Str("reason", reason).
		Msg("rejected player")
	metrics.Rejected.WithLabelValues(metrics.Port(s.Port), reason).Inc()
	conn.Close()
}

func (s *Session) dispatch(worker *Worker) error {
	return s.pool.Submit(func() {
		err := worker.Run(s.Ctx())
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Str("player", worker.Slot().Role()).Msg("worker failed")
			// Peers would wait on this worker forever.
			s.Cancel()
		}
	})
}

// admit hands a connection to a new pursuer worker if the game has room.
func (s *Session) admit(conn *ingress.Connection) error {
	state := s.state

	state.Lock()
	if state.Dead() {
		state.Unlock()
		s.reject(conn, "dead")
		return nil
	}

	slot := state.FindEmptySlot()
	if opt.IsNone(slot) {
		state.Unlock()
		s.reject(conn, "full")
		return nil
	}

	worker := NewWorker(state, conn, slot.Value, s.Port, s.ID)
	state.Reserve(slot.Value, worker)
	state.Unlock()

	err := s.dispatch(worker)
	if err == nil {
		return nil
	}

	state.Lock()
	retracted := state.Retract(slot.Value)
	state.Unlock()
	conn.Close()

	if !retracted {
		return fmt.Errorf("could not start worker: %w", err)
	}
	s.logger.Warn().Err(err).Msg("could not start worker")
	return nil
}

// watch turns round events into metrics until the moderator is done.
func (s *Session) watch(events *utils.Subscriber[RoundEvent]) {
	port := metrics.Port(s.Port)
	for event := range events.Recv() {
		metrics.Rounds.WithLabelValues(port).Inc()
		metrics.Players.WithLabelValues(port).Set(float64(event.Active))
		s.logger.Debug().
			Int("round", event.Round).
			Int("active", event.Active).
			Bool("dead", event.Dead).
			Msg("round")
	}
	metrics.Players.WithLabelValues(port).Set(0)
}

func (s *Session) accept() (*ingress.Connection, error) {
	return s.listener.Accept(s.Ctx(), s.settings.PollInterval)
}

// Run plays the game to the end and summarizes it. If the session is
// cancelled it returns the context error once every task has returned.
func (s *Session) Run() (history.Result, error) {
	result := history.Result{
		Trace:   s.Trace(),
		Port:    s.Port,
		Session: s.ID,
		Started: s.Started(),
	}

	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return result, err
		}
	}
	defer s.listener.Close()
	defer s.Cancel()

	pool, err := ants.NewPool(
		max(s.settings.MaxWorkers, s.settings.Pursuers+1),
		ants.WithPanicHandler(func(value interface{}) {
			s.logger.Error().Msgf("worker panicked: %v", value)
			s.Cancel()
		}),
	)
	if err != nil {
		return result, err
	}
	s.pool = pool

	metrics.Sessions.WithLabelValues(metrics.Port(s.Port)).Inc()
	s.logger.Info().Msgf("game on %s", s.listener.Addr())

	state := s.state
	events := state.Events().Subscribe()
	watched := make(chan struct{})
	go func() {
		s.watch(events)
		close(watched)
	}()

	// The first connection plays the pursued player.
	var moderated chan error
	for moderated == nil {
		conn, err := s.accept()
		if errors.Is(err, ingress.ErrTimeout) {
			continue
		}
		if err != nil {
			state.Events().Close()
			<-watched
			pool.Release()
			return result, err
		}

		worker := NewWorker(state, conn, rules.Pursued, s.Port, s.ID)
		state.Lock()
		state.Reserve(rules.Pursued, worker)
		state.Unlock()

		moderated = make(chan error, 1)
		go func() {
			moderated <- NewModerator(state, s.logger).Run(s.Ctx())
		}()

		if err := s.dispatch(worker); err != nil {
			s.Cancel()
		}
	}

	var runErr error
	for {
		conn, err := s.accept()
		if errors.Is(err, ingress.ErrTimeout) {
			state.Lock()
			dead := state.Dead()
			state.Unlock()
			if dead {
				break
			}
			continue
		}
		if err != nil {
			runErr = err
			break
		}

		if err := s.admit(conn); err != nil {
			runErr = err
			break
		}
	}

	if runErr != nil {
		// Nobody would admit the players still waiting on a round.
		s.Cancel()
	}

	if err := <-moderated; err != nil && runErr == nil {
		runErr = err
	}
	state.Events().Close()
	<-watched

	s.listener.Close()
	if err := pool.ReleaseTimeout(s.settings.DrainTimeout); err != nil {
		s.logger.Warn().Err(err).Msg("workers did not finish in time")
	}

	snapshot := state.Snapshot()
	result.Rounds = snapshot.Round
	result.Players = snapshot.Dispatched
	result.Outcome = snapshot.Outcome
	result.Ended = time.Now()

	if runErr != nil {
		return result, runErr
	}

	s.logger.Info().
		Str("outcome", result.Outcome).
		Int("rounds", result.Rounds).
		Int("players", result.Players).
		Msg("game over")
	return result, nil
}
