// Package config loads service configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Peers    PeersConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig controls the pgx pool.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
}

// NATSConfig controls the notification publisher connection.
type NATSConfig struct {
	URL string
}

// PeersConfig holds base URLs for collaborating services.
type PeersConfig struct {
	ContractsURL string
	IdentityURL  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "procurement-approvals"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8086),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			Database:    getEnv("DB_NAME", "procurement"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnTime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: getEnvDuration("DB_MAX_CONN_IDLE", 30*time.Minute),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},
		Peers: PeersConfig{
			ContractsURL: getEnv("CONTRACTS_SERVICE_URL", "http://localhost:8081"),
			IdentityURL:  getEnv("IDENTITY_SERVICE_URL", "http://localhost:8082"),
		},
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d", cfg.Server.Port)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
