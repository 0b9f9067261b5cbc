package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type validator interface {
	Validate() error
}

// New loads configuration from environment variables into any given struct
// type, then runs its Validate method when it has one.
func New[T any]() (*T, error) {
	cfg := new(T)
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if v, ok := any(cfg).(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

// LoadEnv loads ENV_FILE (e.g. .env.dialer) into the environment, or .env
// when ENV_FILE is unset.
func LoadEnv() error {
	if envfile := os.Getenv("ENV_FILE"); envfile != "" {
		return godotenv.Load(envfile)
	}
	return godotenv.Load()
}
