package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/cfoust/yard/pkg/config"
	"github.com/cfoust/yard/pkg/game"
	"github.com/cfoust/yard/pkg/history"
	"github.com/cfoust/yard/pkg/ingress"
	"github.com/cfoust/yard/pkg/metrics"
	"github.com/cfoust/yard/pkg/rules"

	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"
)

// How long a lock may be held before go-deadlock reports it when --debug
// is set.
const DEBUG_DEADLOCK_TIMEOUT = 5 * time.Second

func deadlockTimeout(c config.Debug, debug bool) time.Duration {
	timeout := c.DeadlockTimeout.Duration()
	if !debug {
		return timeout
	}
	if timeout <= 0 || timeout > DEBUG_DEADLOCK_TIMEOUT {
		return DEBUG_DEADLOCK_TIMEOUT
	}
	return timeout
}

func gameSettings(c *config.Config) game.Settings {
	board := c.Game.Board
	return game.Settings{
		Pursuers:     c.Game.Pursuers,
		PollInterval: c.Game.PollInterval.Duration(),
		MaxWorkers:   c.Game.MaxWorkers,
		DrainTimeout: c.Game.DrainTimeout.Duration(),
		Ingress: ingress.Options{
			AcceptRate:      c.Ingress.AcceptRate,
			AcceptBurst:     c.Ingress.AcceptBurst,
			WebSocket:       c.Ingress.WebSocket.Enabled,
			WebSocketOffset: c.Ingress.WebSocket.PortOffset,
			WriteTimeout:    c.Ingress.WriteTimeout.Duration(),
		},
		NewBoard: func() rules.Board {
			return rules.NewYard(board)
		},
	}
}

func serveCommand(ports []int, configs []string, debug bool) error {
	config, err := config.Process(configs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load yard configuration")
	}

	if len(ports) > 0 {
		config.Ports = ports
	}
	if len(config.Ports) == 0 {
		return fmt.Errorf("no ports to run games on")
	}

	deadlock.Opts.Disable = !config.Debug.DeadlockDetection
	deadlock.Opts.DeadlockTimeout = deadlockTimeout(config.Debug, debug)

	store, err := history.Open(config.History)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	if address := config.Metrics.Address; address != "" {
		group.Go(func() error {
			return metrics.Serve(ctx, address)
		})
	}

	settings := gameSettings(config)
	for _, port := range config.Ports {
		supervisor := game.NewSupervisor(port, settings, store)
		supervisor.RetryDelay = config.Game.RetryDelay.Duration()
		group.Go(func() error {
			return supervisor.Run(ctx)
		})
	}

	log.Info().Ints("ports", config.Ports).Msg("serving games")

	err = group.Wait()
	log.Info().Msg("terminating")
	return err
}
