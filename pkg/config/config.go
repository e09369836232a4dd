// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	OIDC          OIDCConfig
	Notifier      NotifierConfig
	Bootstrap     BootstrapConfig
	Observability ObservabilityConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds connection settings for the primary store.
type DatabaseConfig struct {
	Driver      string
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds settings for the shared permitted-roles cache. When
// Addr is empty the service falls back to the in-process LRU cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// OIDCConfig holds the identity-provider settings for principal resolution.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NotifierConfig holds the webhook notifier settings. When Endpoint is
// empty notifications are discarded.
type NotifierConfig struct {
	Endpoint string
	Timeout  time.Duration
	Retries  int
}

// BootstrapConfig holds the baseline operation configuration settings.
type BootstrapConfig struct {
	OperationsFile string
	WatchFile      bool
	SweepSchedule  string
	SweepBatchSize int
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	MetricsPath string
	CacheSize   int
}

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("WARDEN_HOST", "0.0.0.0"),
			Port:            getEnvInt("WARDEN_PORT", 8080),
			ReadTimeout:     getEnvDuration("WARDEN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WARDEN_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("WARDEN_DB_DRIVER", "postgres"),
			PrimaryURL:  getEnv("WARDEN_DB_URL", ""),
			ReplicaURLs: getEnvList("WARDEN_DB_REPLICA_URLS"),
			MaxConns:    getEnvInt("WARDEN_DB_MAX_CONNS", 25),
			MinConns:    getEnvInt("WARDEN_DB_MIN_CONNS", 5),
			Timeout:     getEnvDuration("WARDEN_DB_TIMEOUT", 5*time.Second),
			MaxLifetime: getEnvDuration("WARDEN_DB_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("WARDEN_DB_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("WARDEN_REDIS_ADDR", ""),
			Password: getEnv("WARDEN_REDIS_PASSWORD", ""),
			DB:       getEnvInt("WARDEN_REDIS_DB", 0),
			CacheTTL: getEnvDuration("WARDEN_CACHE_TTL", 5*time.Minute),
		},
		OIDC: OIDCConfig{
			IssuerURL:    getEnv("WARDEN_OIDC_ISSUER", ""),
			ClientID:     getEnv("WARDEN_OIDC_CLIENT_ID", ""),
			ClientSecret: getEnv("WARDEN_OIDC_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("WARDEN_OIDC_REDIRECT_URL", ""),
		},
		Notifier: NotifierConfig{
			Endpoint: getEnv("WARDEN_NOTIFIER_ENDPOINT", ""),
			Timeout:  getEnvDuration("WARDEN_NOTIFIER_TIMEOUT", 10*time.Second),
			Retries:  getEnvInt("WARDEN_NOTIFIER_RETRIES", 2),
		},
		Bootstrap: BootstrapConfig{
			OperationsFile: getEnv("WARDEN_OPERATIONS_FILE", "operations.yaml"),
			WatchFile:      getEnvBool("WARDEN_OPERATIONS_WATCH", true),
			SweepSchedule:  getEnv("WARDEN_SWEEP_SCHEDULE", "@every 5m"),
			SweepBatchSize: getEnvInt("WARDEN_SWEEP_BATCH_SIZE", 100),
		},
		Observability: ObservabilityConfig{
			LogLevel:    getEnv("WARDEN_LOG_LEVEL", "info"),
			MetricsPath: getEnv("WARDEN_METRICS_PATH", "/metrics"),
			CacheSize:   getEnvInt("WARDEN_CACHE_SIZE", 1024),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("WARDEN_DB_URL is required")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite3" {
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("WARDEN_DB_MIN_CONNS (%d) exceeds WARDEN_DB_MAX_CONNS (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	if c.OIDC.IssuerURL != "" && c.OIDC.ClientID == "" {
		return fmt.Errorf("WARDEN_OIDC_CLIENT_ID is required when WARDEN_OIDC_ISSUER is set")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
