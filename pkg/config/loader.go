package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoaderConfig configures where a binary's configuration comes from
type LoaderConfig struct {
	ConfigFile      string
	EnvironmentFile string
	ServiceName     string
}

// ConfigLoader fills a config struct from tag defaults, a YAML file, an env
// file and the process environment, in that order of precedence.
type ConfigLoader struct {
	config LoaderConfig
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader(cfg LoaderConfig) *ConfigLoader {
	return &ConfigLoader{config: cfg}
}

// Load loads configuration into the provided struct pointer
func (l *ConfigLoader) Load(target any) error {
	if err := l.setDefaults(target); err != nil {
		return fmt.Errorf("failed to set defaults: %w", err)
	}

	if l.config.ConfigFile != "" {
		if err := l.loadFromYAML(target, l.config.ConfigFile); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if l.config.EnvironmentFile != "" {
		if err := l.loadEnvironmentFile(l.config.EnvironmentFile); err != nil {
			return fmt.Errorf("failed to load environment file: %w", err)
		}
	}

	if err := l.loadFromEnv(target); err != nil {
		return fmt.Errorf("failed to load from environment: %w", err)
	}

	return nil
}

func (l *ConfigLoader) setDefaults(target any) error {
	return walkFields(reflect.ValueOf(target), "", func(field reflect.Value, sf reflect.StructField, _ string) error {
		def := sf.Tag.Get("default")
		if def == "" {
			return nil
		}
		if err := setFieldValue(field, def); err != nil {
			return fmt.Errorf("failed to set default for field %s: %w", sf.Name, err)
		}
		return nil
	})
}

func (l *ConfigLoader) loadFromYAML(target any, filename string) error {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return nil
}

// loadEnvironmentFile exports KEY=VALUE lines that are not already set in the
// real environment.
func (l *ConfigLoader) loadEnvironmentFile(filename string) error {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read environment file %s: %w", filename, err)
	}

	for lineNum, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid line %d in environment file %s: %s", lineNum+1, filename, line)
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		if _, exists := os.LookupEnv(key); !exists {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to export %s: %w", key, err)
			}
		}
	}
	return nil
}

// loadFromEnv applies environment overrides. A variable prefixed with the
// upper-cased service name wins over the bare name.
func (l *ConfigLoader) loadFromEnv(target any) error {
	return walkFields(reflect.ValueOf(target), "", func(field reflect.Value, sf reflect.StructField, prefix string) error {
		envName := sf.Tag.Get("env")
		if envName == "" {
			envName = joinEnv(prefix, strings.ToUpper(sf.Name))
		}

		candidates := []string{envName}
		if l.config.ServiceName != "" {
			candidates = append([]string{strings.ToUpper(l.config.ServiceName) + "_" + envName}, candidates...)
		}

		for _, name := range candidates {
			value, exists := os.LookupEnv(name)
			if !exists {
				continue
			}
			if err := setFieldValue(field, value); err != nil {
				return fmt.Errorf("failed to set field %s from env %s: %w", sf.Name, name, err)
			}
			return nil
		}
		return nil
	})
}

// walkFields calls fn for every settable leaf field of a (possibly nested)
// struct. Nested structs extend the env prefix with their field name.
func walkFields(v reflect.Value, prefix string, fn func(reflect.Value, reflect.StructField, string) error) error {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if !field.CanSet() {
			continue
		}

		if isNestedStruct(field) {
			if err := walkFields(field, joinEnv(prefix, strings.ToUpper(sf.Name)), fn); err != nil {
				return err
			}
			continue
		}

		if err := fn(field, sf, prefix); err != nil {
			return err
		}
	}
	return nil
}

func isNestedStruct(field reflect.Value) bool {
	if field.Type() == reflect.TypeOf(time.Time{}) {
		return false
	}
	if field.Kind() == reflect.Struct {
		return true
	}
	return field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct
}

func joinEnv(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

// FindConfigFile searches the usual locations for <serviceName>.yaml
func FindConfigFile(serviceName string) string {
	configName := serviceName + ".yaml"

	searchPaths := []string{
		configName,
		filepath.Join("config", configName),
		filepath.Join("configs", configName),
		filepath.Join("/etc", "fleetdeploy", configName),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".fleetdeploy", configName))
	}

	return firstExisting(searchPaths)
}

// FindEnvironmentFile searches for .env or <serviceName>.env
func FindEnvironmentFile(serviceName string) string {
	envName := serviceName + ".env"

	return firstExisting([]string{
		".env",
		envName,
		filepath.Join("config", ".env"),
		filepath.Join("config", envName),
		filepath.Join("configs", ".env"),
		filepath.Join("configs", envName),
	})
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
