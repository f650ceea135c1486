// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// StoreConfig holds document store settings.
type StoreConfig struct {
	// Path to the SQLite database file.
	Path string
	// MarkerPath to the durable active-tenant marker file.
	MarkerPath string
}

// AccessConfig holds the capability-token settings.
type AccessConfig struct {
	// Token is the caller's capability token, empty for standard access.
	Token string
	// SigningKey verifies (and issues) capability tokens.
	SigningKey string
	// TokenTTL bounds issued tokens.
	TokenTTL time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
	Env   string
}

// AutoSaveConfig holds auto-save timer settings.
type AutoSaveConfig struct {
	Interval time.Duration
	Debounce time.Duration
}

// Config holds all runtime settings.
type Config struct {
	Store    StoreConfig
	Access   AccessConfig
	Log      LogConfig
	AutoSave AutoSaveConfig
}

// Load reads settings from the environment. A .env file in the working
// directory is merged in first when present; it is optional.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dataDir := getEnv("FISCALBOX_DATA_DIR", defaultDataDir())
	cfg := &Config{
		Store: StoreConfig{
			Path:       getEnv("FISCALBOX_DB_PATH", filepath.Join(dataDir, "fiscalbox.db")),
			MarkerPath: getEnv("FISCALBOX_MARKER_PATH", filepath.Join(dataDir, "active-tenant")),
		},
		Access: AccessConfig{
			Token:      getEnv("FISCALBOX_ACCESS_TOKEN", ""),
			SigningKey: getEnv("FISCALBOX_ACCESS_SIGNING_KEY", ""),
			TokenTTL:   getEnvAsDuration("FISCALBOX_ACCESS_TOKEN_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level: getEnv("FISCALBOX_LOG_LEVEL", "info"),
			Env:   getEnv("FISCALBOX_ENV", "development"),
		},
		AutoSave: AutoSaveConfig{
			Interval: getEnvAsDuration("FISCALBOX_AUTOSAVE_INTERVAL", 30*time.Second),
			Debounce: getEnvAsDuration("FISCALBOX_AUTOSAVE_DEBOUNCE", 2*time.Second),
		},
	}
	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".fiscalbox")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
