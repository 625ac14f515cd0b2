package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values loaded from the TOML file.
const (
	EnvBackendURL = "PODSESSION_BACKEND_URL"
	EnvDBPath     = "PODSESSION_DB_PATH"
	EnvLogLevel   = "PODSESSION_LOG_LEVEL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Backend  BackendConfig  `toml:"backend"`
	Session  SessionConfig  `toml:"session"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// BackendConfig describes how to reach the remote Auth Backend.
type BackendConfig struct {
	BaseURL              string `toml:"base_url"`
	TimeoutSeconds       int    `toml:"timeout_seconds"`
	LogoutTimeoutSeconds int    `toml:"logout_timeout_seconds"`
	GrantType            string `toml:"grant_type"`
}

// SessionConfig tunes the session manager and its expiry watchdog.
type SessionConfig struct {
	WatchdogIntervalSeconds int `toml:"watchdog_interval_seconds"`
	RefreshLeadSeconds      int `toml:"refresh_lead_seconds"`
	HistoryLimit            int `toml:"history_limit"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP gateway settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	LoginRoute   string `toml:"login_route"`
	LandingRoute string `toml:"landing_route"`
}

// LogConfig controls logger verbosity.
type LogConfig struct {
	Level string `toml:"level"`
}

// Timeout returns the per-request backend timeout.
func (b BackendConfig) Timeout() time.Duration {
	return seconds(b.TimeoutSeconds, 15)
}

// LogoutTimeout bounds the best-effort remote logout call.
func (b BackendConfig) LogoutTimeout() time.Duration {
	return seconds(b.LogoutTimeoutSeconds, 5)
}

// WatchdogInterval is how often the expiry watchdog checks the stored credential.
func (s SessionConfig) WatchdogInterval() time.Duration {
	return seconds(s.WatchdogIntervalSeconds, 60)
}

// RefreshLead is how long before expiry the watchdog refreshes proactively.
func (s SessionConfig) RefreshLead() time.Duration {
	return seconds(s.RefreshLeadSeconds, 300)
}

// Addr returns the host:port listen address of the gateway.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their embedded default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate reports configuration values the application cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("%w: backend.base_url is required", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("%w: backend.base_url must be an http(s) URL, got %q", ErrInvalidConfig, c.Backend.BaseURL)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	if c.Session.RefreshLeadSeconds < 0 || c.Session.WatchdogIntervalSeconds < 0 {
		return fmt.Errorf("%w: session durations cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// ApplyEnv loads a .env file when present and overrides config values from PODSESSION_* variables.
//
// A missing .env file is not an error.
func ApplyEnv(c *Config, envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, f, err)
		}
	}

	if v, ok := os.LookupEnv(EnvBackendURL); ok && v != "" {
		c.Backend.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvDBPath); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	return c.Validate()
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
