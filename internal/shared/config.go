package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values read from the TOML file.
const (
	EnvDatabasePath = "REELSYNC_DATABASE_PATH"
	EnvRemoteURL    = "REELSYNC_REMOTE_URL"
	EnvRemoteToken  = "REELSYNC_REMOTE_TOKEN"
	EnvLogLevel     = "REELSYNC_LOG_LEVEL"
	EnvSyncInterval = "REELSYNC_SYNC_INTERVAL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Remote   RemoteConfig   `toml:"remote"`
	Sync     SyncConfig     `toml:"sync"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RemoteConfig describes the sync server this installation talks to.
type RemoteConfig struct {
	BaseURL   string   `toml:"base_url"`
	FeedURL   string   `toml:"feed_url"`
	Token     string   `toml:"token"`
	Timeout   Duration `toml:"timeout"`
	RateLimit float64  `toml:"rate_limit"`
	Burst     int      `toml:"burst"`
}

// SyncConfig contains the queue retry policy and the processor schedule.
type SyncConfig struct {
	Interval    Duration `toml:"interval"`
	MaxRetries  int      `toml:"max_retries"`
	BackoffBase Duration `toml:"backoff_base"`
	BackoffMax  Duration `toml:"backoff_max"`
	OnChange    bool     `toml:"on_change"`
}

// ServerConfig contains local status server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig controls log verbosity and an optional log file.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Duration wraps [time.Duration] so TOML values like "30s" decode directly.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults. A .env file next to the working directory
// is loaded (if present) before environment overrides are applied.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := LoadEnv(config, ".env"); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadEnv loads dotenv files (missing files are ignored) and applies REELSYNC_* overrides to config.
func LoadEnv(config *Config, files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	if v := os.Getenv(EnvDatabasePath); v != "" {
		config.Database.Path = v
	}
	if v := os.Getenv(EnvRemoteURL); v != "" {
		config.Remote.BaseURL = v
	}
	if v := os.Getenv(EnvRemoteToken); v != "" {
		config.Remote.Token = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv(EnvSyncInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			if secs, convErr := strconv.Atoi(v); convErr == nil {
				d = time.Duration(secs) * time.Second
			} else {
				return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvSyncInterval, v)
			}
		}
		config.Sync.Interval = Duration{d}
	}
	return nil
}

// Validate checks the values the sync engine cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	case c.Remote.BaseURL == "":
		return fmt.Errorf("%w: remote.base_url is required", ErrInvalidConfig)
	case c.Remote.Timeout.Duration <= 0:
		return fmt.Errorf("%w: remote.timeout must be positive", ErrInvalidConfig)
	case c.Sync.MaxRetries < 1:
		return fmt.Errorf("%w: sync.max_retries must be at least 1", ErrInvalidConfig)
	case c.Sync.BackoffBase.Duration <= 0 || c.Sync.BackoffMax.Duration < c.Sync.BackoffBase.Duration:
		return fmt.Errorf("%w: sync backoff window is invalid", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
