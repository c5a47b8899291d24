// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const envPrefix = "BOOSTLY_"

// Config holds the entitlement service configuration.
type Config struct {
	// ListenHost and ListenPort are the HTTP bind address.
	ListenHost string
	ListenPort int

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is json, console, or auto.
	LogFormat string

	// DataDir holds the acknowledgment ledger. Empty means in-memory only.
	DataDir string

	// MockGateway enables the in-memory commerce gateway for development.
	MockGateway bool

	// SubscriberBuffer is the per-subscriber status channel capacity.
	SubscriberBuffer int

	// AllowedOrigins restricts WebSocket upgrades; comma-separated, "*" for any.
	AllowedOrigins string
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		ListenHost:       "0.0.0.0",
		ListenPort:       7575,
		LogLevel:         "info",
		LogFormat:        "auto",
		DataDir:          "/var/lib/entitlementd",
		MockGateway:      false,
		SubscriberBuffer: 16,
		AllowedOrigins:   "",
	}
}

// Load builds the configuration from defaults, an optional .env file, and
// BOOSTLY_-prefixed environment variables, in that order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with environment")
	}

	cfg := Defaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv(envPrefix + "LISTEN_HOST"); val != "" {
		c.ListenHost = val
	}
	if val := os.Getenv(envPrefix + "LISTEN_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.ListenPort = port
		}
	}
	if val := os.Getenv(envPrefix + "LOG_LEVEL"); val != "" {
		c.LogLevel = strings.ToLower(val)
	}
	if val := os.Getenv(envPrefix + "LOG_FORMAT"); val != "" {
		c.LogFormat = strings.ToLower(val)
	}
	if val := os.Getenv(envPrefix + "DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv(envPrefix + "MOCK_GATEWAY"); val != "" {
		c.MockGateway = strings.ToLower(val) == "true"
	}
	if val := os.Getenv(envPrefix + "SUBSCRIBER_BUFFER"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			c.SubscriberBuffer = size
		}
	}
	if val := os.Getenv(envPrefix + "ALLOWED_ORIGINS"); val != "" {
		c.AllowedOrigins = val
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port %d", c.ListenPort)
	}
	if c.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber buffer must be at least 1, got %d", c.SubscriberBuffer)
	}
	switch c.LogFormat {
	case "json", "console", "auto":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	return nil
}

// ListenAddr returns the host:port bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}
