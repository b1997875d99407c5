package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fleetctl configuration
type Config struct {
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
}

// CoordinatorConfig locates the coordinator API
type CoordinatorConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoadConfig reads $HOME/.fleetctl/config.yaml (or cfgFile), FLEETCTL_*
// environment variables and any flags already bound to v
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.fleetctl")
		v.AddConfigPath("/etc/fleetctl/")
	}

	// FLEETCTL_COORDINATOR_ENDPOINT, FLEETCTL_COORDINATOR_TIMEOUT
	v.SetEnvPrefix("FLEETCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("coordinator.endpoint")
	_ = v.BindEnv("coordinator.timeout")

	v.SetDefault("coordinator.endpoint", "http://localhost:8000")
	v.SetDefault("coordinator.timeout", "10s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.Coordinator.Endpoint == "" {
		return nil, errors.New("coordinator endpoint is required")
	}
	return &cfg, nil
}
