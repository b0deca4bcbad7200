// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/ini.v1"
)

// Config represents the application configuration
type Config struct {
	// Store connections
	Postgres      *PostgresConfig
	ClickHouse    *ClickHouseConfig
	Elasticsearch *ElasticsearchConfig
	S3            *S3Config
	Redis         *RedisConfig
	Verification  *VerificationConfig

	// Run settings
	Run *RunConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RunConfig holds settings for a single redaction run
type RunConfig struct {
	// Number of sharded distribution tables to scan during resolution
	ShardCount int

	// Upper bound on contributors pulled from the database when no
	// explicit input is given
	SampleSize int

	// DryRun previews every phase without mutating any store
	DryRun bool

	// SkipCache skips the session cache clearing phase
	SkipCache bool

	// FullDiscovery enables the catalog-wide search index sweep
	FullDiscovery bool

	// BackupDir receives the pre-mutation CSV backup
	BackupDir string
}

// Load reads configuration from an INI file, then applies environment
// variable overrides. An empty path loads from the environment only.
func Load(path string) (*Config, error) {
	var file *ini.File
	if path != "" {
		f, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		file = f
	} else {
		file = ini.Empty()
	}

	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	pgConfig, err := LoadPostgresConfig(file.Section("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to load PostgreSQL configuration: %w", err)
	}
	cfg.Postgres = pgConfig

	cfg.ClickHouse = LoadClickHouseConfig(file.Section("clickhouse"))
	cfg.Elasticsearch = LoadElasticsearchConfig(file.Section("elasticsearch"))
	cfg.S3 = LoadS3Config(file.Section("s3"))
	cfg.Redis = LoadRedisConfig(file.Section("redis"))
	cfg.Verification = LoadVerificationConfig(file.Section("verification"))

	cfg.Run = &RunConfig{
		ShardCount:    getEnvAsInt("SHARD_COUNT", 10),
		SampleSize:    getEnvAsInt("SAMPLE_SIZE", 10),
		DryRun:        true,
		SkipCache:     false,
		FullDiscovery: false,
		BackupDir:     getEnv("BACKUP_DIR", "."),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Postgres == nil {
		return errors.New("postgreSQL configuration is required")
	}

	if err := c.Postgres.Validate(); err != nil {
		return fmt.Errorf("postgreSQL configuration invalid: %w", err)
	}

	if c.Run.ShardCount <= 0 {
		return errors.New("shard count must be positive")
	}

	if c.Run.SampleSize < 0 {
		return errors.New("sample size cannot be negative")
	}

	return nil
}

// iniKey returns a section key value, falling back to a default
func iniKey(section *ini.Section, key, defaultValue string) string {
	if section == nil {
		return defaultValue
	}
	value := section.Key(key).String()
	if value == "" {
		return defaultValue
	}
	return value
}

// iniKeyInt returns a section key as int, falling back to a default
func iniKeyInt(section *ini.Section, key string, defaultValue int) int {
	if section == nil {
		return defaultValue
	}
	value, err := section.Key(key).Int()
	if err != nil {
		return defaultValue
	}
	return value
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
