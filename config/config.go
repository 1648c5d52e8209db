// Package config loads the analytics server configuration from defaults, an
// optional YAML file and OBSANALYTICS_* environment variables, in that order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// PathEnvVar overrides the config file path.
	PathEnvVar = "OBSANALYTICS_CONFIG"

	// DefaultPath is read when no path is given and PathEnvVar is unset.
	DefaultPath = "config.yaml"

	envPrefix = "OBSANALYTICS_"
)

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Critterbase CritterbaseConfig `koanf:"critterbase"`
	Logging     LoggingConfig     `koanf:"logging"`
}

type ServerConfig struct {
	Addr               string        `koanf:"addr" validate:"required"`
	ReadTimeout        time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout       time.Duration `koanf:"write_timeout" validate:"gt=0"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute" validate:"gte=0"`
	AllowedOrigins     []string      `koanf:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver       string `koanf:"driver" validate:"oneof=sqlite3 postgres"`
	DSN          string `koanf:"dsn" validate:"required"`
	SeedDemo     bool   `koanf:"seed_demo"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gte=0"`
}

type CritterbaseConfig struct {
	URL         string        `koanf:"url" validate:"omitempty,url"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
	BearerToken string        `koanf:"bearer_token"`
	User        string        `koanf:"user"`
}

type LoggingConfig struct {
	Level       string `koanf:"level" validate:"oneof=debug info warn error"`
	Development bool   `koanf:"development"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8080",
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       60 * time.Second,
			RateLimitPerMinute: 120,
			AllowedOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:       "sqlite3",
			DSN:          "file:obsanalytics?mode=memory&cache=shared",
			SeedDemo:     true,
			MaxOpenConns: 10,
		},
		Critterbase: CritterbaseConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration. path may be empty, in which case
// OBSANALYTICS_CONFIG and then ./config.yaml are consulted; a missing
// config.yaml is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envTransform maps OBSANALYTICS_CRITTERBASE__BEARER_TOKEN to
// critterbase.bearer_token. Comma separated values become lists.
func envTransform(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	if key == "server.allowed_origins" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		return key, origins
	}

	return key, value
}

// Validate checks field constraints, that demo data only goes to sqlite and
// that measurement definitions have a source.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return err
	}

	if c.Database.SeedDemo && c.Database.Driver != "sqlite3" {
		return fmt.Errorf("database.seed_demo is only supported with the sqlite3 driver, got %s", c.Database.Driver)
	}

	if c.Critterbase.URL == "" && !c.Database.SeedDemo {
		return errors.New("critterbase.url is required unless database.seed_demo is enabled")
	}

	return nil
}
