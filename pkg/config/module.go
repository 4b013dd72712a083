package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DEFAULT []byte

// Environment variables with this prefix override file values, for
// example YARD_GAME_POLL_INTERVAL=1s.
const ENV_PREFIX = "YARD_"

func readFile(path string, config *Config) error {
	// Check if this is a valid file
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("does not exist")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	extension := filepath.Ext(path)
	switch extension {
	case ".json":
		return json.Unmarshal(data, config)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	}

	return fmt.Errorf(
		"not in a valid format",
	)
}

// Process applies the provided configuration files in order on top of the
// default configuration, then applies environment overrides and checks
// the result. Later files win over earlier ones.
func Process(configPaths []string) (*Config, error) {
	config := Config{}

	err := yaml.Unmarshal(DEFAULT, &config)
	if err != nil {
		return nil, fmt.Errorf(
			"invalid default config file: %v",
			err,
		)
	}

	for _, path := range configPaths {
		err := readFile(path, &config)
		if err != nil {
			return nil, fmt.Errorf(
				"could not process config file %s: %v",
				path,
				err,
			)
		}
	}

	err = env.ParseWithOptions(&config, env.Options{Prefix: ENV_PREFIX})
	if err != nil {
		return nil, fmt.Errorf(
			"could not apply environment: %v",
			err,
		)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	for _, port := range c.Ports {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
	}

	game := c.Game
	if game.Pursuers < 1 {
		return fmt.Errorf("game needs at least one pursuer slot")
	}
	if game.MaxWorkers < game.Pursuers+1 {
		return fmt.Errorf(
			"maxWorkers (%d) cannot serve %d players",
			game.MaxWorkers,
			game.Pursuers+1,
		)
	}
	if game.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be positive")
	}

	board := game.Board
	squares := board.Width * board.Height
	if board.Width < 1 || board.Height < 1 {
		return fmt.Errorf("board must have at least one square")
	}
	if board.PursuedStart < 0 || board.PursuedStart >= squares ||
		board.PursuerStart < 0 || board.PursuerStart >= squares {
		return fmt.Errorf("starting squares must be on the board")
	}
	if board.PursuedStart == board.PursuerStart {
		return fmt.Errorf("pursued and pursuers cannot start on the same square")
	}

	ws := c.Ingress.WebSocket
	if ws.Enabled && ws.PortOffset == 0 {
		return fmt.Errorf("websocket portOffset cannot be zero")
	}

	return nil
}
