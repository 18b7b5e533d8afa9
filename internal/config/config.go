// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	ForkAtomicityTransaction = "transaction"
	ForkAtomicityCompensate  = "compensate"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	Env                string
	ServiceName        string

	// Storage
	StoreDriver   string
	DatabaseURL   string
	DBMaxConns    int
	DBTablePrefix string
	DBAutoMigrate bool

	// NATS settings; an empty URL disables event publishing.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Auth
	JWTSecret string
	JWKSURL   string

	// Fork engine
	ForkAtomicity       string
	CompensationTimeout time.Duration

	// HTTP
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		Env:                getEnv("ENV", "production"),
		ServiceName:        getEnv("SERVICE_NAME", "advisor-platform"),

		// Storage
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DBMaxConns:    getIntEnv("DB_MAX_CONNS", 10),
		DBTablePrefix: getEnv("DB_TABLE_PREFIX", ""),
		DBAutoMigrate: getBoolEnv("DB_AUTO_MIGRATE", false),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Auth
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWKSURL:   getEnv("JWKS_URL", ""),

		// Fork engine
		ForkAtomicity:       strings.ToLower(getEnv("FORK_ATOMICITY", ForkAtomicityTransaction)),
		CompensationTimeout: getDurationEnv("COMPENSATION_TIMEOUT", 5*time.Second),

		// HTTP
		CORSOrigins:       getListEnv("CORS_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports the first configuration problem that would prevent startup.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ForkAtomicity {
	case ForkAtomicityTransaction, ForkAtomicityCompensate:
	default:
		return fmt.Errorf("unknown FORK_ATOMICITY %q", c.ForkAtomicity)
	}

	if c.JWTSecret == "" && c.JWKSURL == "" {
		return errors.New("one of JWT_SECRET or JWKS_URL is required")
	}
	if c.CompensationTimeout <= 0 {
		return errors.New("COMPENSATION_TIMEOUT must be positive")
	}
	if c.DBMaxConns <= 0 {
		return errors.New("DB_MAX_CONNS must be positive")
	}
	return nil
}

// NATSEnabled reports whether event publishing is configured.
func (c *Config) NATSEnabled() bool {
	return c.NATSURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping empty items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
