// Package config provides configuration management: process configuration
// from the environment, the methodology document, and the API credential
// vault.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded at startup. It is treated as
// immutable after Load; live reload is deliberately not supported.
type Config struct {
	DataDir         string // Base directory for the database and universe files
	DatabasePath    string // SQLite file, derived from DataDir
	MethodologyPath string // Optional YAML overriding methodology defaults
	LogLevel        string
	Port            int
	DevMode         bool

	CollectionWorkers int // Bounded parallelism for the orchestrator

	Credentials Credentials
	Methodology *Methodology
}

// Load reads configuration from environment variables and the optional
// methodology file.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("EQUITYSCOPE_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		DatabasePath:      filepath.Join(absDataDir, "analytics.db"),
		MethodologyPath:   getEnv("EQUITYSCOPE_METHODOLOGY", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnvAsInt("EQUITYSCOPE_PORT", 8010),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		CollectionWorkers: getEnvAsInt("COLLECTION_WORKERS", 4),
		Credentials:       loadCredentials(),
	}

	methodology, err := LoadMethodology(cfg.MethodologyPath)
	if err != nil {
		return nil, err
	}
	cfg.Methodology = methodology

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks process-level configuration. Methodology validation is
// separate so tests can validate documents in isolation.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.CollectionWorkers < 1 || c.CollectionWorkers > 32 {
		return fmt.Errorf("collection workers must be in [1,32], got %d", c.CollectionWorkers)
	}
	if c.Methodology != nil {
		if err := c.Methodology.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
