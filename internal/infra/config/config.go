// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Spotify   SpotifyConfig    `yaml:"spotify"`
	Providers []ProviderConfig `yaml:"providers" validate:"dive"`
	Releases  ReleasesConfig   `yaml:"releases"`
	Queries   QueriesConfig    `yaml:"queries"`
}

// ServerConfig represents HTTP API configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080"`
	Token           string        `yaml:"token"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	Debug           bool          `yaml:"debug"`
	Hooks           HooksConfig   `yaml:"hooks"`
}

// HooksConfig represents shell commands run around the server lifecycle.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// DatabaseConfig represents catalog database configuration.
type DatabaseConfig struct {
	Driver        string        `yaml:"driver" default:"sqlite" validate:"oneof=sqlite postgres"`
	DSN           string        `yaml:"dsn" default:"musicbucket.db" validate:"required"`
	LogLevel      string        `yaml:"log_level" default:"warn" validate:"oneof=silent error warn info"`
	SlowThreshold time.Duration `yaml:"slow_threshold" default:"200ms"`
	MaxOpenConns  int           `yaml:"max_open_conns" default:"10" validate:"gte=1"`
}

// SpotifyConfig represents Spotify API configuration.
// Credentials may be left out entirely for commands that only read the database.
type SpotifyConfig struct {
	ClientID     string        `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string        `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string        `yaml:"market" validate:"omitempty,len=2" default:"JP"`
	MaxRetries   int           `yaml:"max_retries" default:"3" validate:"gte=1,lte=10"`
	RetryDelay   time.Duration `yaml:"retry_delay" default:"1s"`
}

// ProviderConfig represents a recognized link provider for the URL classifier.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// ReleasesConfig represents new release detection configuration.
type ReleasesConfig struct {
	IncludeGroups []string `yaml:"include_groups" default:"[\"album\",\"single\"]" validate:"min=1,dive,oneof=album single appears_on compilation"`
}

// QueriesConfig represents chat query configuration.
type QueriesConfig struct {
	Window    time.Duration `yaml:"window" default:"168h"`
	TopGenres int           `yaml:"top_genres" default:"10" validate:"gte=1"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, applying env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
