// Package config provides configuration management for the broker standalone
// server. It loads settings from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the broker server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Broker   BrokerConfig
	AMQP     AMQPConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port int

	// Name identifies this broker process in the delivery-server table, so
	// control messages can be routed to the process owning a sub_key.
	Name string
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string // mysql, postgres, sqlite3
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Prefix   string // Table prefix (default: "broker_")
}

// BrokerConfig holds delivery engine configuration.
type BrokerConfig struct {
	PollInterval        time.Duration // Idle sleep between store polls
	BackoffMin          time.Duration // Lower bound of the failure backoff
	BackoffMax          time.Duration // Upper bound of the failure backoff
	EnableNotifications bool
}

// AMQPConfig holds the outgoing AMQP connection configuration. An empty URL
// disables the AMQP transport.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// Load loads configuration from environment variables.
// Follows 12-factor app principles - configuration via environment.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
			Name: getEnv("SERVER_NAME", defaultServerName()),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "broker"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "broker"),
			Prefix:   getEnv("DB_PREFIX", "broker_"),
		},
		Broker: BrokerConfig{
			PollInterval:        getEnvDuration("BROKER_POLL_INTERVAL", 1*time.Second),
			BackoffMin:          getEnvDuration("BROKER_BACKOFF_MIN", 10*time.Second),
			BackoffMax:          getEnvDuration("BROKER_BACKOFF_MAX", 20*time.Second),
			EnableNotifications: getEnvBool("BROKER_ENABLE_NOTIFICATIONS", true),
		},
		AMQP: AMQPConfig{
			URL:        getEnv("AMQP_URL", ""),
			Exchange:   getEnv("AMQP_EXCHANGE", "broker.out"),
			RoutingKey: getEnv("AMQP_ROUTING_KEY", ""),
		},
	}

	// Validate required fields
	if cfg.Database.Driver != "sqlite3" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD environment variable is required")
	}
	if cfg.Broker.BackoffMax < cfg.Broker.BackoffMin {
		return nil, fmt.Errorf("BROKER_BACKOFF_MAX must be >= BROKER_BACKOFF_MIN")
	}

	return cfg, nil
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}

func defaultServerName() string {
	host, err := os.Hostname()
	if err != nil {
		return "broker-1"
	}
	return host
}

// getEnv retrieves environment variable or returns default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as boolean or returns default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves environment variable as a Go duration string
// ("1s", "500ms") or returns default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
