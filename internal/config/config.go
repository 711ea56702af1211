// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings (server mode only)
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string
	LogFmt   string // "text" or "json"

	// Input logs
	BatchFile  string
	StreamFile string

	// Output sinks
	FlagFile    string
	InvalidFile string

	// Optional Postgres sink for flagged purchases. When empty, flags go to
	// the flag file only.
	DatabaseURL string

	// Detection settings
	StdThreshold float64 // standard deviations above the pooled mean
}

// Defaults
const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultLogFmt       = "text"
	DefaultStdThreshold = 3
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		Env:          getEnv("ENV", DefaultEnv),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFmt:       getEnv("LOG_FORMAT", DefaultLogFmt),
		BatchFile:    os.Getenv("SW_BATCH_FILE"),
		StreamFile:   os.Getenv("SW_STREAM_FILE"),
		FlagFile:     os.Getenv("SW_FLAG_FILE"),
		InvalidFile:  os.Getenv("SW_INVALID_FILE"),
		DatabaseURL:  os.Getenv("DATABASE_URL"), // Optional, file sink only if not set
		StdThreshold: getEnvFloat("SW_STD_THRESHOLD", DefaultStdThreshold),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	if c.StdThreshold <= 0 {
		return fmt.Errorf("SW_STD_THRESHOLD must be positive, got %v", c.StdThreshold)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
