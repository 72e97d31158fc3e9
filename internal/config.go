package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL     = "http://localhost:8000"
	DefaultRequestTimeout = 15 * time.Second
	DefaultDebounceDelay  = 300 * time.Millisecond

	envAPIBaseURL = "GEO_TRACE_API_BASE_URL"
	envStorage    = "GEO_TRACE_STORAGE"
)

// Config holds client settings
type Config struct {
	APIBaseURL     string        `yaml:"api_base_url"`
	StoragePath    string        `yaml:"storage_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DebounceDelay  time.Duration `yaml:"debounce_delay"`
}

// ConfigDir returns ~/.geo-trace
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".geo-trace"), nil
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	cfg := &Config{
		APIBaseURL:     DefaultAPIBaseURL,
		RequestTimeout: DefaultRequestTimeout,
		DebounceDelay:  DefaultDebounceDelay,
	}
	if dir, err := ConfigDir(); err == nil {
		cfg.StoragePath = filepath.Join(dir, "state.db")
	}
	return cfg
}

// LoadConfig reads the YAML config at path (empty means the default location),
// then applies .env and environment overrides. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		dir, err := ConfigDir()
		if err == nil {
			path = filepath.Join(dir, "config.yaml")
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, &ParseError{Source: "config", Key: path, Err: err}
			}
			LogDebug("Loaded config from %s", path)
		case os.IsNotExist(err):
			LogDebug("No config file at %s, using defaults", path)
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		LogDebug("Ignoring .env: %v", err)
	}
	if v := os.Getenv(envAPIBaseURL); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv(envStorage); v != "" {
		cfg.StoragePath = v
	}

	cfg.Normalize()
	return cfg, nil
}

// Normalize fills zero values with defaults and trims the base URL
func (c *Config) Normalize() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = DefaultDebounceDelay
	}
}

// APIRoot returns the base path all endpoints hang off
func (c *Config) APIRoot() string {
	return c.APIBaseURL + "/api"
}
