package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type envOverrides struct {
	Driver    string `env:"CHRONICLE_STORAGE_DRIVER"`
	DSN       string `env:"CHRONICLE_STORAGE_DSN"`
	LogLevel  string `env:"CHRONICLE_LOG_LEVEL"`
	LogFormat string `env:"CHRONICLE_LOG_FORMAT"`
	Budget    int    `env:"CHRONICLE_CONTEXT_BUDGET"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotenv exports the variables of an optional .env file. Variables
// already set in the environment win.
func LoadDotenv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := ParseEnv(&o); err != nil {
		return err
	}
	if o.Driver != "" {
		cfg.Storage.Driver = o.Driver
	}
	if o.DSN != "" {
		cfg.Storage.DSN = o.DSN
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if o.Budget != 0 {
		cfg.Context.Budget = o.Budget
	}
	return nil
}
