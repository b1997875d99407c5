package config

import (
	"fmt"
	"strings"
	"time"
)

// CoordinatorConfig contains all configuration for the coordinator service
type CoordinatorConfig struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Fleet    FleetConfig    `yaml:"fleet"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	GitHub   GitHubConfig   `yaml:"github"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host           string        `yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" env:"SERVER_PORT" default:"8000"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"15s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"30s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" default:"60s"`
	CORSOrigins    []string      `yaml:"cors_origins" env:"CORS_ORIGINS" default:"*"`
}

// DatabaseConfig configures the sqlite store
type DatabaseConfig struct {
	DSN   string `yaml:"dsn" env:"DATABASE_URL" default:"fleet.db"`
	Debug bool   `yaml:"debug" env:"DATABASE_DEBUG" default:"false"`

	// MaxOpenConns above 1 only applies to file databases
	MaxOpenConns int `yaml:"max_open_conns" default:"1"`
}

// FleetConfig tunes liveness and deployment queries
type FleetConfig struct {
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" env:"HEARTBEAT_TIMEOUT" default:"30s"`
	HistoryLimit     int           `yaml:"history_limit" default:"50"`
}

// MetricsConfig configures the request aggregator and gauge collector
type MetricsConfig struct {
	LatencyWindow     int           `yaml:"latency_window" default:"1000"`
	CollectorInterval time.Duration `yaml:"collector_interval" default:"15s"`
}

// GitHubConfig configures the release versions lookup
type GitHubConfig struct {
	APIBaseURL string        `yaml:"api_base_url" default:"https://api.github.com"`
	Timeout    time.Duration `yaml:"timeout" default:"10s"`
	Token      string        `yaml:"-" env:"GITHUB_TOKEN"`
}

// LoadCoordinator loads the coordinator configuration from multiple sources
func LoadCoordinator(configFile, envFile string) (*CoordinatorConfig, error) {
	cfg := &CoordinatorConfig{}

	loader := NewConfigLoader(LoaderConfig{
		ConfigFile:      configFile,
		EnvironmentFile: envFile,
		ServiceName:     "coordinator",
	})
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load coordinator configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("coordinator configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *CoordinatorConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Fleet.HeartbeatTimeout <= 0 {
		return fmt.Errorf("heartbeat timeout must be positive")
	}
	if c.Fleet.HistoryLimit < 1 {
		return fmt.Errorf("history limit must be at least 1")
	}
	if c.Metrics.LatencyWindow < 1 {
		return fmt.Errorf("metrics latency window must be at least 1")
	}
	return nil
}

// GetListenAddress returns the address the HTTP server binds to
func (c *CoordinatorConfig) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
