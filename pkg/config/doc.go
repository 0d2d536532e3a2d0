// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	GOSSO_HOST="0.0.0.0"
//	GOSSO_PORT="8080"
//	GOSSO_HEALTH_PORT="9090"
//	GOSSO_READ_TIMEOUT="15s"
//	GOSSO_WRITE_TIMEOUT="15s"
//	GOSSO_USERNAME_FIELD="email"
//
// Session store settings:
//
//	GOSSO_REDIS_URL="redis://localhost:6379/0"
//	GOSSO_SESSION_TTL="60m"  # duration, or "forever"
//
// Broker registry settings:
//
//	GOSSO_REGISTRY_DRIVER="static"  # static, postgres
//	GOSSO_REGISTRY_FILE="brokers.yaml"
//	GOSSO_REGISTRY_WATCH="true"
//	GOSSO_POSTGRES_URL="postgres://localhost/gosso"
//	GOSSO_REGISTRY_TABLE="brokers"
//
// Broker-side client settings (gosso-broker):
//
//	GOSSO_CLIENT_ID="appid"
//	GOSSO_CLIENT_SECRET="SeCrEt"
//	GOSSO_SERVER_URL="http://sso-server:8080"
//	GOSSO_DEBUG="false"
//
// Observability settings:
//
//	GOSSO_LOG_LEVEL="info"  # debug, info, warn, error
//	GOSSO_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Registry: %s\n", cfg.Registry.Driver)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/session: Uses session store configuration
//   - pkg/broker: Uses registry configuration
package config
