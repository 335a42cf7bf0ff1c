package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "chronicle.yaml"

type Config struct {
	Project     string            `yaml:"project"`
	Version     int               `yaml:"version"`
	Storage     StorageConfig     `yaml:"storage"`
	Context     ContextConfig     `yaml:"context"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Packs       string            `yaml:"packs"`
	Roster      []string          `yaml:"roster"`
	Log         LogConfig         `yaml:"log"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ContextConfig struct {
	Budget           int `yaml:"budget"`
	MaxRelationships int `yaml:"max_relationships"`
	MaxRecent        int `yaml:"max_recent"`
}

type MaintenanceConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var (
	drivers    = []string{"sqlite", "postgres", "bolt"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json", "pretty"}
)

// Default is the configuration written by `chronicle init` and used when
// no config file exists.
func Default() *Config {
	return &Config{
		Project: "chronicle",
		Version: 1,
		Storage: StorageConfig{Driver: "sqlite", DSN: "sqlite://chronicle.db"},
		Context: ContextConfig{Budget: 6000, MaxRelationships: 5, MaxRecent: 3},
		Maintenance: MaintenanceConfig{
			RetentionDays: 30,
		},
		Packs: "packs",
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}

// Load reads the config file, falling back to defaults when it does not
// exist, then applies .env and CHRONICLE_* environment overrides.
func Load(path string) (*Config, error) {
	if err := LoadDotenv(".env"); err != nil {
		return nil, err
	}

	cfg, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Retention is how long retired sessions are kept before a sweep.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Maintenance.RetentionDays) * 24 * time.Hour
}

func (c *Config) Validate() error {
	return validateConfig(c)
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Project) == "" {
		return fmt.Errorf("project name is required")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if !oneOf(drivers, cfg.Storage.Driver) {
		return fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
	}
	if strings.TrimSpace(cfg.Storage.DSN) == "" {
		return fmt.Errorf("storage dsn is required")
	}

	if cfg.Context.Budget < 0 || cfg.Context.MaxRelationships < 0 || cfg.Context.MaxRecent < 0 {
		return fmt.Errorf("context limits must not be negative")
	}
	if cfg.Maintenance.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if cfg.Maintenance.RetentionDays == 0 {
		cfg.Maintenance.RetentionDays = 30
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level != "" && !oneOf(logLevels, cfg.Log.Level) {
		return fmt.Errorf("unsupported log level: %q", cfg.Log.Level)
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Log.Format != "" && !oneOf(logFormats, cfg.Log.Format) {
		return fmt.Errorf("unsupported log format: %q", cfg.Log.Format)
	}

	seen := make(map[string]struct{})
	for i, name := range cfg.Roster {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("roster entry %d is empty", i)
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, exists := seen[key]; exists {
			return fmt.Errorf("duplicate roster name: %s", name)
		}
		seen[key] = struct{}{}
	}

	return nil
}

func oneOf(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
