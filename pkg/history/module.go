package history

import (
	"context"
	"fmt"
	"time"
)

// Result summarizes one finished game session.
type Result struct {
	Trace   string    `cbor:"trace"`
	Port    int       `cbor:"port"`
	Session int       `cbor:"session"`
	Rounds  int       `cbor:"rounds"`
	Players int       `cbor:"players"`
	Outcome string    `cbor:"outcome"`
	Started time.Time `cbor:"started"`
	Ended   time.Time `cbor:"ended"`
}

func (r Result) String() string {
	return fmt.Sprintf(
		"%d:%d %s after %d rounds, %d players (%s)",
		r.Port,
		r.Session,
		r.Outcome,
		r.Rounds,
		r.Players,
		r.Ended.Sub(r.Started).Round(time.Second),
	)
}

type Store interface {
	Record(ctx context.Context, result Result) error
	// Recent returns up to limit results, most recently ended first.
	Recent(ctx context.Context, limit int) ([]Result, error)
	Close() error
}

type RedisSettings struct {
	Address  string `yaml:"address" json:"address" env:"ADDRESS"`
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" json:"db" env:"DB"`
}

type Settings struct {
	// One of "", "sqlite" or "redis". Empty disables recording.
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`
	// Database file for the sqlite driver.
	Path string `yaml:"path" json:"path" env:"PATH"`
	// How many results the redis driver keeps.
	Keep  int           `yaml:"keep" json:"keep" env:"KEEP"`
	Redis RedisSettings `yaml:"redis" json:"redis" envPrefix:"REDIS_"`
}

// Open returns the store described by settings, or nil if recording is
// disabled.
func Open(settings Settings) (Store, error) {
	switch settings.Driver {
	case "":
		return nil, nil
	case "sqlite":
		return NewSQLStore(settings.Path)
	case "redis":
		return NewRedisStore(settings.Redis, settings.Keep), nil
	}

	return nil, fmt.Errorf("unknown history driver %q", settings.Driver)
}
