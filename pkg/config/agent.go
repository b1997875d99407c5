package config

import (
	"fmt"
	"net/url"
	"os"
	"runtime"
	"time"

	"fleetdeploy/pkg/models"
)

// AgentConfig contains all configuration for the fleet-agent process
type AgentConfig struct {
	Log   LogConfig     `yaml:"log"`
	Agent AgentSettings `yaml:"agent"`
}

// AgentSettings identifies the agent and tunes its polling loop
type AgentSettings struct {
	Name                string        `yaml:"name" env:"AGENT_NAME"`
	Platform            string        `yaml:"platform" env:"AGENT_PLATFORM"`
	Version             string        `yaml:"version" env:"AGENT_VERSION" default:"0.1.0"`
	IPAddress           string        `yaml:"ip_address" env:"AGENT_IP_ADDRESS"`
	CoordinatorEndpoint string        `yaml:"coordinator_endpoint" env:"AGENT_COORDINATOR_ENDPOINT" default:"http://localhost:8000"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval" default:"10s"`
	PollInterval        time.Duration `yaml:"poll_interval" default:"5s"`
	RequestTimeout      time.Duration `yaml:"request_timeout" default:"10s"`

	// HookCommand runs once per release of a claimed deployment.
	HookCommand []string      `yaml:"hook_command" env:"AGENT_HOOK_COMMAND"`
	HookTimeout time.Duration `yaml:"hook_timeout" default:"10m"`
}

// LoadAgent loads the agent configuration and fills identity defaults from the host
func LoadAgent(configFile, envFile string) (*AgentConfig, error) {
	cfg := &AgentConfig{}

	loader := NewConfigLoader(LoaderConfig{
		ConfigFile:      configFile,
		EnvironmentFile: envFile,
		ServiceName:     "fleet_agent",
	})
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load agent configuration: %w", err)
	}

	if cfg.Agent.Name == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Agent.Name = host
		}
	}
	if cfg.Agent.Platform == "" {
		cfg.Agent.Platform = HostPlatform()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *AgentConfig) Validate() error {
	if c.Agent.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if !models.Platform(c.Agent.Platform).Valid() {
		return fmt.Errorf("unsupported platform %q (expected windows or macos)", c.Agent.Platform)
	}
	if _, err := url.ParseRequestURI(c.Agent.CoordinatorEndpoint); err != nil {
		return fmt.Errorf("invalid coordinator endpoint: %w", err)
	}
	if c.Agent.HeartbeatInterval <= 0 || c.Agent.PollInterval <= 0 {
		return fmt.Errorf("heartbeat and poll intervals must be positive")
	}
	return nil
}

// HostPlatform maps the running OS onto a fleet platform name
func HostPlatform() string {
	if runtime.GOOS == "darwin" {
		return string(models.PlatformMacOS)
	}
	return string(models.PlatformWindows)
}
