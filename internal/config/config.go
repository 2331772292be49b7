package config

import (
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v6"
)

// EnvConfig is the raw environment surface.
type EnvConfig struct {
	ServerAddr     string   `env:"CHATWIRE_ADDR" envDefault:"localhost:8000"`
	DatabaseDSN    string   `env:"CHATWIRE_DSN"`
	SigningSecret  string   `env:"CHATWIRE_SIGNING_SECRET"`
	AllowedOrigins []string `env:"CHATWIRE_ALLOWED_ORIGINS" envSeparator:","`
}

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
}

// FromEnv parses and validates configuration from the environment.
func FromEnv() (*Config, error) {
	var ec EnvConfig
	if err := env.Parse(&ec); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return New(ec)
}

func New(ec EnvConfig) (*Config, error) {
	if ec.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if ec.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if ec.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := base64.StdEncoding.DecodeString(ec.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     ec.ServerAddr,
		DatabaseDSN:    ec.DatabaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: ec.AllowedOrigins,
	}, nil
}
