package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"orderlens/internal/core"
)

type Config struct {
	// HTTP Server
	Addr              string
	Port              string
	MaxUploadBytes    int64
	UploadsPerMinute  int
	RequestsPerSecond int
	ShutdownTimeout   time.Duration

	// Dataset storage
	DataBackend  string
	SQLiteDBPath string

	// Parsing
	Timezone       string
	IDColumn       string
	DateColumn     string
	AmountColumn   string
	QuantityColumn string

	// Dashboard defaults
	DefaultTopN            int
	DefaultGranularity     string
	DefaultBreakdownColumn string
	KeepNonPositiveGroups  bool

	// Snapshot cache
	CacheSize int
	CacheTTL  time.Duration

	LogLevel string
}

// MaxTopN bounds the breakdown size a client may request.
const MaxTopN = 50

func Load() *Config {
	return &Config{
		Addr:              getEnv("ADDR", "127.0.0.1"),
		Port:              getEnv("PORT", "8081"),
		MaxUploadBytes:    getEnvInt64("MAX_UPLOAD_BYTES", 32<<20),
		UploadsPerMinute:  getEnvInt("UPLOADS_PER_MINUTE", 30),
		RequestsPerSecond: getEnvInt("REQUESTS_PER_SECOND", 50),
		ShutdownTimeout:   getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/orderlens.db"),

		Timezone:       getEnv("TIMEZONE", "UTC"),
		IDColumn:       getEnv("ID_COLUMN", "Order ID"),
		DateColumn:     getEnv("DATE_COLUMN", "Order Date"),
		AmountColumn:   getEnv("AMOUNT_COLUMN", "Total Owed"),
		QuantityColumn: getEnv("QUANTITY_COLUMN", "Quantity"),

		DefaultTopN:            getEnvInt("DEFAULT_TOP_N", 5),
		DefaultGranularity:     getEnv("DEFAULT_GRANULARITY", string(core.Day)),
		DefaultBreakdownColumn: getEnv("DEFAULT_BREAKDOWN_COLUMN", "Payment Instrument Type"),
		KeepNonPositiveGroups:  getEnvBool("KEEP_NON_POSITIVE_GROUPS", false),

		CacheSize: getEnvInt("CACHE_SIZE", 64),
		CacheTTL:  getEnvDuration("CACHE_TTL", 10*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ListenAddr joins Addr and Port.
func (c *Config) ListenAddr() string {
	return c.Addr + ":" + c.Port
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate validates the configuration and returns an error listing every
// problem found.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.MaxUploadBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be positive", c.MaxUploadBytes))
	}
	if c.UploadsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid uploads per minute %d: must be at least 1", c.UploadsPerMinute))
	}
	if c.RequestsPerSecond < 1 {
		errors = append(errors, fmt.Sprintf("invalid requests per second %d: must be at least 1", c.RequestsPerSecond))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.DateColumn == "" || c.AmountColumn == "" {
		errors = append(errors, "date and amount column names cannot be empty")
	} else if c.DateColumn == c.AmountColumn {
		errors = append(errors, fmt.Sprintf("date and amount columns must differ, both are '%s'", c.DateColumn))
	}

	if c.DefaultTopN < 1 || c.DefaultTopN > MaxTopN {
		errors = append(errors, fmt.Sprintf("invalid default top N %d: must be between 1 and %d", c.DefaultTopN, MaxTopN))
	}
	if _, err := core.ParseGranularity(c.DefaultGranularity); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default granularity '%s': must be one of %v", c.DefaultGranularity, core.Granularities()))
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
