package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brexis/gosso/pkg/session"
)

// Registry driver names.
const (
	RegistryStatic   = "static"
	RegistryPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Session store configuration
	Session SessionConfig

	// Broker registry configuration
	Registry RegistryConfig

	// Broker-side client configuration (gosso-broker binary)
	Client ClientConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// UsernameField is the unique user field logins key on
	UsernameField string
}

// SessionConfig holds session store configuration
type SessionConfig struct {
	// RedisURL selects the shared redis store; empty means in-memory
	// (single instance only)
	RedisURL string

	// TTL is the session lifetime; zero means sessions never expire.
	// The GOSSO_SESSION_TTL variable accepts the literal "forever".
	TTL time.Duration
}

// RegistryConfig holds broker registry configuration
type RegistryConfig struct {
	// Driver is "static" (yaml file) or "postgres"
	Driver string

	// Static driver
	File  string
	Watch bool

	// Postgres driver
	PostgresURL  string
	Table        string
	IDColumn     string
	SecretColumn string
}

// ClientConfig holds the broker-side client configuration
type ClientConfig struct {
	ID        string
	Secret    string
	ServerURL string
	Debug     bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel logrus.Level

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Session:       loadSessionConfig(),
		Registry:      loadRegistryConfig(),
		Client:        loadClientConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GOSSO_HOST", "0.0.0.0"),
		Port:            getEnv("GOSSO_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GOSSO_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GOSSO_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GOSSO_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GOSSO_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GOSSO_HEALTH_PORT", "9090"),
		UsernameField:   getEnv("GOSSO_USERNAME_FIELD", "email"),
	}
}

// loadSessionConfig loads session store configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		RedisURL: getEnv("GOSSO_REDIS_URL", ""),
		TTL:      getEnvTTL("GOSSO_SESSION_TTL", session.DefaultTTL),
	}
}

// loadRegistryConfig loads broker registry configuration from environment
func loadRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Driver:       getEnv("GOSSO_REGISTRY_DRIVER", RegistryStatic),
		File:         getEnv("GOSSO_REGISTRY_FILE", "brokers.yaml"),
		Watch:        getEnvBool("GOSSO_REGISTRY_WATCH", true),
		PostgresURL:  getEnv("GOSSO_POSTGRES_URL", ""),
		Table:        getEnv("GOSSO_REGISTRY_TABLE", ""),
		IDColumn:     getEnv("GOSSO_REGISTRY_ID_COLUMN", ""),
		SecretColumn: getEnv("GOSSO_REGISTRY_SECRET_COLUMN", ""),
	}
}

// loadClientConfig loads broker-side client configuration from environment
func loadClientConfig() ClientConfig {
	return ClientConfig{
		ID:        getEnv("GOSSO_CLIENT_ID", ""),
		Secret:    getEnv("GOSSO_CLIENT_SECRET", ""),
		ServerURL: getEnv("GOSSO_SERVER_URL", ""),
		Debug:     getEnvBool("GOSSO_DEBUG", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("GOSSO_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("GOSSO_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate registry config based on driver
	switch c.Registry.Driver {
	case RegistryStatic:
		if c.Registry.File == "" {
			return fmt.Errorf("registry file is required for the static registry driver")
		}
	case RegistryPostgres:
		if c.Registry.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for the postgres registry driver")
		}
	default:
		return fmt.Errorf("invalid registry driver: %s (must be static or postgres)", c.Registry.Driver)
	}

	if c.Session.TTL < 0 {
		return fmt.Errorf("session TTL must not be negative")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvTTL is getEnvDuration plus the "forever" literal, which maps to the
// zero duration (sessions never expire).
func getEnvTTL(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); strings.EqualFold(value, "forever") {
		return 0
	}
	return getEnvDuration(key, defaultValue)
}
