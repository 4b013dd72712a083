package config

import (
	"time"

	"github.com/cfoust/yard/pkg/history"
	"github.com/cfoust/yard/pkg/rules"
)

// Duration is a time.Duration written as "5s" in every config format.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

type Game struct {
	Pursuers     int              `yaml:"pursuers" json:"pursuers" env:"PURSUERS"`
	PollInterval Duration         `yaml:"pollInterval" json:"pollInterval" env:"POLL_INTERVAL"`
	MaxWorkers   int              `yaml:"maxWorkers" json:"maxWorkers" env:"MAX_WORKERS"`
	DrainTimeout Duration         `yaml:"drainTimeout" json:"drainTimeout" env:"DRAIN_TIMEOUT"`
	RetryDelay   Duration         `yaml:"retryDelay" json:"retryDelay" env:"RETRY_DELAY"`
	Board        rules.YardConfig `yaml:"board" json:"board"`
}

type WebSocket struct {
	Enabled    bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
	PortOffset int  `yaml:"portOffset" json:"portOffset" env:"PORT_OFFSET"`
}

type Ingress struct {
	AcceptRate   float64   `yaml:"acceptRate" json:"acceptRate" env:"ACCEPT_RATE"`
	AcceptBurst  int       `yaml:"acceptBurst" json:"acceptBurst" env:"ACCEPT_BURST"`
	WriteTimeout Duration  `yaml:"writeTimeout" json:"writeTimeout" env:"WRITE_TIMEOUT"`
	WebSocket    WebSocket `yaml:"websocket" json:"websocket" envPrefix:"WEBSOCKET_"`
}

type Metrics struct {
	Address string `yaml:"address" json:"address" env:"ADDRESS"`
}

type Debug struct {
	DeadlockDetection bool     `yaml:"deadlockDetection" json:"deadlockDetection" env:"DEADLOCK_DETECTION"`
	DeadlockTimeout   Duration `yaml:"deadlockTimeout" json:"deadlockTimeout" env:"DEADLOCK_TIMEOUT"`
}

type Config struct {
	Ports   []int            `yaml:"ports" json:"ports" env:"PORTS" envSeparator:","`
	Game    Game             `yaml:"game" json:"game" envPrefix:"GAME_"`
	Ingress Ingress          `yaml:"ingress" json:"ingress" envPrefix:"INGRESS_"`
	History history.Settings `yaml:"history" json:"history" envPrefix:"HISTORY_"`
	Metrics Metrics          `yaml:"metrics" json:"metrics" envPrefix:"METRICS_"`
	Debug   Debug            `yaml:"debug" json:"debug" envPrefix:"DEBUG_"`
}
