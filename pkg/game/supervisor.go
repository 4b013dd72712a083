package game

import (
	"context"
	"errors"
	"time"

	"github.com/cfoust/yard/pkg/history"

	"github.com/rs/zerolog/log"
)

// Supervisor runs games on one port one after another.
type Supervisor struct {
	Port       int
	RetryDelay time.Duration

	settings Settings
	// May be nil.
	store history.Store

	// Called with each session before it runs.
	OnSession func(*Session)
}

func NewSupervisor(port int, settings Settings, store history.Store) *Supervisor {
	return &Supervisor{
		Port:       port,
		RetryDelay: 5 * time.Second,
		settings:   settings,
		store:      store,
	}
}

func (s *Supervisor) record(ctx context.Context, result history.Result) {
	if s.store == nil {
		return
	}

	if err := s.store.Record(ctx, result); err != nil {
		log.Warn().Err(err).Int("port", s.Port).Msg("could not record game")
	}
}

// Run returns once ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := log.With().Int("port", s.Port).Logger()

	for id := 0; ; {
		session := NewSession(ctx, s.Port, id, s.settings)

		if err := session.Listen(); err != nil {
			session.Cancel()
			logger.Error().Err(err).Msgf("could not start game %d", id)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.RetryDelay):
			}
			continue
		}

		if s.OnSession != nil {
			s.OnSession(session)
		}

		result, err := session.Run()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msgf("game %d failed", id)
		}

		s.record(ctx, result)
		id++
	}
}
