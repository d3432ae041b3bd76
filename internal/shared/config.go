package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Platform PlatformConfig `toml:"platform"`
	Engine   EngineConfig   `toml:"engine"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PlatformConfig contains settings for the CRM platform API shared by source and destination accounts.
type PlatformConfig struct {
	BaseURL        string  `toml:"base_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RateLimit      float64 `toml:"rate_limit"`
	Burst          int     `toml:"burst"`
}

// Timeout is the hard per-call deadline for a single platform request.
func (p PlatformConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// EngineConfig tunes the migration engine.
type EngineConfig struct {
	Workers            int `toml:"workers"`
	PageSize           int `toml:"page_size"`
	AnalyzeConcurrency int `toml:"analyze_concurrency"`
	RetryAttempts      int `toml:"retry_attempts"`
	RetryDelayMS       int `toml:"retry_delay_ms"`
	RetryMaxDelayMS    int `toml:"retry_max_delay_ms"`
	PollIntervalMS     int `toml:"poll_interval_ms"`
	LeaseSeconds       int `toml:"lease_seconds"`
}

// RetryDelay is the first backoff delay for transient failures.
func (e EngineConfig) RetryDelay() time.Duration {
	return time.Duration(e.RetryDelayMS) * time.Millisecond
}

// RetryMaxDelay caps the exponential backoff.
func (e EngineConfig) RetryMaxDelay() time.Duration {
	return time.Duration(e.RetryMaxDelayMS) * time.Millisecond
}

// PollInterval is how often status readers poll the job store.
func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMS) * time.Millisecond
}

// Lease is how long a running job stays owned by its engine without a heartbeat.
func (e EngineConfig) Lease() time.Duration {
	return time.Duration(e.LeaseSeconds) * time.Second
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Validate reports the first impossible value in the configuration.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	case c.Platform.BaseURL == "":
		return fmt.Errorf("%w: platform.base_url is required", ErrInvalidConfig)
	case c.Platform.TimeoutSeconds <= 0:
		return fmt.Errorf("%w: platform.timeout_seconds must be positive", ErrInvalidConfig)
	case c.Platform.RateLimit <= 0:
		return fmt.Errorf("%w: platform.rate_limit must be positive", ErrInvalidConfig)
	case c.Engine.Workers <= 0 || c.Engine.Workers > 50:
		return fmt.Errorf("%w: engine.workers must be between 1 and 50", ErrInvalidConfig)
	case c.Engine.PageSize <= 0:
		return fmt.Errorf("%w: engine.page_size must be positive", ErrInvalidConfig)
	case c.Engine.AnalyzeConcurrency <= 0:
		return fmt.Errorf("%w: engine.analyze_concurrency must be positive", ErrInvalidConfig)
	case c.Engine.RetryAttempts <= 0:
		return fmt.Errorf("%w: engine.retry_attempts must be positive", ErrInvalidConfig)
	case c.Engine.LeaseSeconds <= 0:
		return fmt.Errorf("%w: engine.lease_seconds must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
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
