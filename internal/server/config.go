package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds relay server settings, read from the environment.
type Config struct {
	Port     int           `env:"RELAY_PORT" envDefault:"8080"`
	RoomTTL  time.Duration `env:"RELAY_ROOM_TTL" envDefault:"30m"`
	LogLevel string        `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig parses relay settings from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse relay config: %w", err)
	}
	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
