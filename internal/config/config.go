package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// App holds server-level settings. Per-experiment settings (seats, rounds,
// phase durations, payoff parameters) live in experiment records and are
// loaded from the store when a waiting room is created.
type App struct {
	Port int `env:"PORT" envDefault:"8080"`

	DatabaseDSN string `env:"DATABASE_DSN"`

	CredentialTTL   time.Duration `env:"CREDENTIAL_TTL" envDefault:"30m"`
	RoomGracePeriod time.Duration `env:"ROOM_GRACE_PERIOD" envDefault:"10s"`

	RateLimitMessages int           `env:"RATE_LIMIT_MESSAGES" envDefault:"20"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1s"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

func LoadApp() (App, error) {
	var cfg App
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadLog() (Log, error) {
	var cfg Log
	err := env.Parse(&cfg)
	return cfg, err
}

func (c App) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.CredentialTTL <= 0 {
		return fmt.Errorf("CREDENTIAL_TTL must be positive, got %s", c.CredentialTTL)
	}
	if c.RateLimitMessages <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	return nil
}
