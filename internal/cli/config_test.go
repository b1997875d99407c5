package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig(viper.New(), "")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Coordinator.Endpoint != "http://localhost:8000" {
		t.Errorf("Expected default endpoint 'http://localhost:8000', got '%s'", cfg.Coordinator.Endpoint)
	}
	if cfg.Coordinator.Timeout != 10*time.Second {
		t.Errorf("Expected default timeout 10s, got %v", cfg.Coordinator.Timeout)
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := `
coordinator:
  endpoint: "http://fleet.example.com:9000"
  timeout: 3s
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(viper.New(), configFile)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Coordinator.Endpoint != "http://fleet.example.com:9000" {
		t.Errorf("Expected endpoint from file, got '%s'", cfg.Coordinator.Endpoint)
	}
	if cfg.Coordinator.Timeout != 3*time.Second {
		t.Errorf("Expected timeout 3s, got %v", cfg.Coordinator.Timeout)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLEETCTL_COORDINATOR_ENDPOINT", "http://env.example.com")

	cfg, err := LoadConfig(viper.New(), "")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Coordinator.Endpoint != "http://env.example.com" {
		t.Errorf("Expected endpoint from environment, got '%s'", cfg.Coordinator.Endpoint)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}
