package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testConfig struct {
	Log  LogConfig   `yaml:"log"`
	Test testSection `yaml:"test"`
}

type testSection struct {
	StringValue   string        `yaml:"string_value" env:"FD_TEST_STRING" default:"default_string"`
	IntValue      int           `yaml:"int_value" env:"FD_TEST_INT" default:"42"`
	BoolValue     bool          `yaml:"bool_value" env:"FD_TEST_BOOL" default:"true"`
	DurationValue time.Duration `yaml:"duration_value" env:"FD_TEST_DURATION" default:"5m"`
	ListValue     []string      `yaml:"list_value" env:"FD_TEST_LIST" default:"a, b"`
	Nested        nestedSection `yaml:"nested"`
}

type nestedSection struct {
	NestedString string `yaml:"nested_string" default:"nested_default"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestConfigLoader_Defaults(t *testing.T) {
	cfg := &testConfig{}
	if err := NewConfigLoader(LoaderConfig{ServiceName: "fdtest"}).Load(cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Test.StringValue != "default_string" {
		t.Errorf("Expected StringValue 'default_string', got '%s'", cfg.Test.StringValue)
	}
	if cfg.Test.IntValue != 42 {
		t.Errorf("Expected IntValue 42, got %d", cfg.Test.IntValue)
	}
	if !cfg.Test.BoolValue {
		t.Errorf("Expected BoolValue true")
	}
	if cfg.Test.DurationValue != 5*time.Minute {
		t.Errorf("Expected DurationValue 5m, got %v", cfg.Test.DurationValue)
	}
	if len(cfg.Test.ListValue) != 2 || cfg.Test.ListValue[1] != "b" {
		t.Errorf("Expected ListValue [a b], got %v", cfg.Test.ListValue)
	}
	if cfg.Test.Nested.NestedString != "nested_default" {
		t.Errorf("Expected nested default, got '%s'", cfg.Test.Nested.NestedString)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected Log.Level 'info', got '%s'", cfg.Log.Level)
	}
}

func TestConfigLoader_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "fdtest.yaml", `
log:
  level: debug
test:
  string_value: yaml_string
  int_value: 123
  duration_value: 10m
  list_value: [x, y, z]
  nested:
    nested_string: yaml_nested
`)

	cfg := &testConfig{}
	if err := NewConfigLoader(LoaderConfig{ConfigFile: path, ServiceName: "fdtest"}).Load(cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Test.StringValue != "yaml_string" {
		t.Errorf("Expected StringValue 'yaml_string', got '%s'", cfg.Test.StringValue)
	}
	if cfg.Test.IntValue != 123 {
		t.Errorf("Expected IntValue 123, got %d", cfg.Test.IntValue)
	}
	if cfg.Test.DurationValue != 10*time.Minute {
		t.Errorf("Expected DurationValue 10m, got %v", cfg.Test.DurationValue)
	}
	if len(cfg.Test.ListValue) != 3 {
		t.Errorf("Expected 3 list entries, got %v", cfg.Test.ListValue)
	}
	if cfg.Test.Nested.NestedString != "yaml_nested" {
		t.Errorf("Expected NestedString 'yaml_nested', got '%s'", cfg.Test.Nested.NestedString)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected Log.Level 'debug', got '%s'", cfg.Log.Level)
	}
}

func TestConfigLoader_EnvOverrides(t *testing.T) {
	t.Setenv("FD_TEST_STRING", "env_string")
	t.Setenv("FD_TEST_BOOL", "off")
	t.Setenv("FD_TEST_LIST", "one,two,,three")
	t.Setenv("TEST_NESTED_NESTEDSTRING", "derived_name")

	cfg := &testConfig{}
	if err := NewConfigLoader(LoaderConfig{ServiceName: "fdtest"}).Load(cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Test.StringValue != "env_string" {
		t.Errorf("Expected StringValue 'env_string', got '%s'", cfg.Test.StringValue)
	}
	if cfg.Test.BoolValue {
		t.Errorf("Expected BoolValue false")
	}
	if strings.Join(cfg.Test.ListValue, "|") != "one|two|three" {
		t.Errorf("Expected list one|two|three, got %v", cfg.Test.ListValue)
	}
	if cfg.Test.Nested.NestedString != "derived_name" {
		t.Errorf("Expected derived env name to apply, got '%s'", cfg.Test.Nested.NestedString)
	}
}

func TestConfigLoader_ServiceSpecificOverride(t *testing.T) {
	t.Setenv("FD_TEST_STRING", "general")
	t.Setenv("FDTEST_FD_TEST_STRING", "specific")

	cfg := &testConfig{}
	if err := NewConfigLoader(LoaderConfig{ServiceName: "fdtest"}).Load(cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Test.StringValue != "specific" {
		t.Errorf("Expected service-specific value, got '%s'", cfg.Test.StringValue)
	}
}

func TestConfigLoader_PrecedenceOrder(t *testing.T) {
	yamlPath := writeFile(t, "fdtest.yaml", "test:\n  string_value: yaml_value\n  int_value: 100\n")
	envPath := writeFile(t, "fdtest.env", "FD_TEST_STRING=env_file_value\nexport FD_TEST_DURATION='20m'\n")
	t.Cleanup(func() {
		os.Unsetenv("FD_TEST_DURATION")
	})
	t.Setenv("FD_TEST_STRING", "env_var_value")

	cfg := &testConfig{}
	err := NewConfigLoader(LoaderConfig{
		ConfigFile:      yamlPath,
		EnvironmentFile: envPath,
		ServiceName:     "fdtest",
	}).Load(cfg)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Test.StringValue != "env_var_value" {
		t.Errorf("Expected real environment to win, got '%s'", cfg.Test.StringValue)
	}
	if cfg.Test.IntValue != 100 {
		t.Errorf("Expected IntValue 100 from YAML, got %d", cfg.Test.IntValue)
	}
	if cfg.Test.DurationValue != 20*time.Minute {
		t.Errorf("Expected DurationValue 20m from env file, got %v", cfg.Test.DurationValue)
	}
}

func TestConfigLoader_InvalidInputs(t *testing.T) {
	badYAML := writeFile(t, "bad.yaml", "test:\n  string_value: x\n  nested:\nbad_yaml\n")
	err := NewConfigLoader(LoaderConfig{ConfigFile: badYAML}).Load(&testConfig{})
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("Expected parse error, got %v", err)
	}

	badEnv := writeFile(t, "bad.env", "INVALID LINE WITHOUT EQUALS\n")
	err = NewConfigLoader(LoaderConfig{EnvironmentFile: badEnv}).Load(&testConfig{})
	if err == nil || !strings.Contains(err.Error(), "invalid line") {
		t.Errorf("Expected invalid line error, got %v", err)
	}

	t.Setenv("FD_TEST_INT", "not-a-number")
	err = NewConfigLoader(LoaderConfig{}).Load(&testConfig{})
	if err == nil || !strings.Contains(err.Error(), "invalid integer value") {
		t.Errorf("Expected integer parse error, got %v", err)
	}
}

func TestConfigLoader_MissingFilesAreOptional(t *testing.T) {
	err := NewConfigLoader(LoaderConfig{
		ConfigFile:      "/non/existent/config.yaml",
		EnvironmentFile: "/non/existent/.env",
	}).Load(&testConfig{})
	if err != nil {
		t.Errorf("Expected missing files to be ignored, got %v", err)
	}
}

func TestLoadCoordinator_Defaults(t *testing.T) {
	cfg, err := LoadCoordinator("", "")
	if err != nil {
		t.Fatalf("LoadCoordinator failed: %v", err)
	}

	if cfg.Fleet.HeartbeatTimeout != 30*time.Second {
		t.Errorf("Expected 30s heartbeat timeout, got %v", cfg.Fleet.HeartbeatTimeout)
	}
	if cfg.Fleet.HistoryLimit != 50 {
		t.Errorf("Expected history limit 50, got %d", cfg.Fleet.HistoryLimit)
	}
	if cfg.Metrics.LatencyWindow != 1000 {
		t.Errorf("Expected latency window 1000, got %d", cfg.Metrics.LatencyWindow)
	}
	if cfg.GetListenAddress() != "0.0.0.0:8000" {
		t.Errorf("Unexpected listen address %s", cfg.GetListenAddress())
	}
}

func TestLoadCoordinator_Validation(t *testing.T) {
	t.Setenv("COORDINATOR_SERVER_PORT", "70000")

	if _, err := LoadCoordinator("", ""); err == nil {
		t.Errorf("Expected validation error for out of range port")
	}
}

func TestLoadAgent(t *testing.T) {
	t.Setenv("AGENT_NAME", "mac-01")
	t.Setenv("AGENT_PLATFORM", "macos")
	t.Setenv("AGENT_HOOK_COMMAND", "/usr/local/bin/install.sh,--quiet")

	cfg, err := LoadAgent("", "")
	if err != nil {
		t.Fatalf("LoadAgent failed: %v", err)
	}

	if cfg.Agent.Name != "mac-01" || cfg.Agent.Platform != "macos" {
		t.Errorf("Unexpected identity %s/%s", cfg.Agent.Name, cfg.Agent.Platform)
	}
	if len(cfg.Agent.HookCommand) != 2 {
		t.Errorf("Expected 2 hook command parts, got %v", cfg.Agent.HookCommand)
	}

	t.Setenv("AGENT_PLATFORM", "linux")
	if _, err := LoadAgent("", ""); err == nil {
		t.Errorf("Expected unsupported platform to fail validation")
	}
}

func TestLogConfig_Level(t *testing.T) {
	cases := map[string]string{
		"debug":   "debug",
		"WARN":    "warn",
		"unknown": "info",
		"":        "info",
	}
	for in, want := range cases {
		c := LogConfig{Level: in}
		if got := c.zerologLevel().String(); got != want {
			t.Errorf("level %q: expected %s, got %s", in, want, got)
		}
	}

	c := LogConfig{Level: "error", Debug: true}
	if got := c.zerologLevel().String(); got != "debug" {
		t.Errorf("Expected debug flag to win, got %s", got)
	}
}
