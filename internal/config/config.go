// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir    string // Base directory for all databases (always absolute)
	PolicyPath string // YAML file with the watchlist and risk policy
	LogLevel   string
	LogPretty  bool
	Port       int
	DevMode    bool
	Backup     BackupConfig
	Policy     *Policy
}

// BackupConfig holds the optional off-site snapshot destination.
// Uploads are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket          string
	Endpoint        string // S3-compatible endpoint, empty for AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	KeepLocal       int // local snapshots retained after rotation
	RetentionDays   int // remote snapshots older than this are rotated, 0 keeps all
}

// Enabled reports whether snapshots are uploaded
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables and the policy file
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SIGMAGUARD_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:    absDataDir,
		PolicyPath: getEnv("SIGMAGUARD_CONFIG", "sigmaguard.yaml"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogPretty:  getEnvAsBool("LOG_PRETTY", false),
		Port:       getEnvAsInt("GO_PORT", 8001),
		DevMode:    getEnvAsBool("DEV_MODE", false),
		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("BACKUP_S3_PREFIX", "sigmaguard"),
			KeepLocal:       getEnvAsInt("BACKUP_KEEP_LOCAL", 7),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	cfg.Policy, err = LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT %d", c.Port)
	}
	if c.Backup.Enabled() && (c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "") {
		return errors.New("BACKUP_S3_BUCKET is set but credentials are missing")
	}
	if c.Policy == nil {
		return errors.New("policy not loaded")
	}
	return nil
}

// LedgerPath is the ledger database location
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// CachePath is the provider cache database location
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// BackupDir is where local ledger snapshots are written
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, "backups")
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
