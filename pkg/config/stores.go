// pkg/config/stores.go
package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Statement timeout
	StatementTimeout time.Duration
}

// ClickHouseConfig holds ClickHouse connection parameters.
// The HTTP interface is used so statements can run against clusters
// that only expose port 8123.
type ClickHouseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Query timeout
	QueryTimeout time.Duration
}

// ElasticsearchConfig holds search cluster connection parameters
type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string

	// FallbackIndex is always swept regardless of resolved associations
	FallbackIndex string

	// Async task polling
	TaskPollInterval time.Duration
	TaskPollTimeout  time.Duration

	// Upper bound on indices taken from a full catalog discovery
	DiscoveryLimit int
}

// S3Config holds object storage parameters
type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// RedisConfig holds session cache parameters
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// VerificationConfig holds the internal API verification target
type VerificationConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LoadPostgresConfig loads PostgreSQL configuration from an INI section
// with environment variable overrides
func LoadPostgresConfig(section *ini.Section) (*PostgresConfig, error) {
	user := getEnv("POSTGRES_USER", iniKey(section, "user", ""))
	if user == "" {
		return nil, errors.New("database user is required ([database] user or POSTGRES_USER)")
	}

	password := getEnv("POSTGRES_PASSWORD", iniKey(section, "password", ""))
	if password == "" {
		return nil, errors.New("database password is required ([database] password or POSTGRES_PASSWORD)")
	}

	database := getEnv("POSTGRES_DB", iniKey(section, "dbname", ""))
	if database == "" {
		return nil, errors.New("database name is required ([database] dbname or POSTGRES_DB)")
	}

	cfg := &PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", iniKey(section, "host", "localhost")),
		Port:     getEnvAsInt("POSTGRES_PORT", iniKeyInt(section, "port", 5432)),
		User:     user,
		Password: password,
		Database: database,
		SSLMode:  getEnv("POSTGRES_SSLMODE", iniKey(section, "sslmode", "require")),

		MaxOpenConns:     getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 1800)) * time.Second,
		ConnMaxIdleTime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_TIME_SECONDS", 600)) * time.Second,
		StatementTimeout: time.Duration(getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	return cfg, nil
}

// LoadClickHouseConfig loads ClickHouse configuration from an INI section
// with environment variable overrides
func LoadClickHouseConfig(section *ini.Section) *ClickHouseConfig {
	return &ClickHouseConfig{
		Host:     getEnv("CLICKHOUSE_HOST", iniKey(section, "host", "localhost")),
		Port:     getEnvAsInt("CLICKHOUSE_PORT", iniKeyInt(section, "port", 8123)),
		User:     getEnv("CLICKHOUSE_USER", iniKey(section, "user", "default")),
		Password: getEnv("CLICKHOUSE_PASSWORD", iniKey(section, "password", "")),
		Database: getEnv("CLICKHOUSE_DATABASE", iniKey(section, "database", "kepler")),

		MaxOpenConns:    getEnvAsInt("CLICKHOUSE_MAX_OPEN_CONNS", 5),
		MaxIdleConns:    getEnvAsInt("CLICKHOUSE_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: time.Duration(getEnvAsInt("CLICKHOUSE_CONN_MAX_LIFETIME_SECONDS", 600)) * time.Second,
		ConnMaxIdleTime: time.Duration(getEnvAsInt("CLICKHOUSE_CONN_MAX_IDLE_TIME_SECONDS", 300)) * time.Second,
		QueryTimeout:    time.Duration(getEnvAsInt("CLICKHOUSE_QUERY_TIMEOUT_SECONDS", 300)) * time.Second,
	}
}

// LoadElasticsearchConfig loads search cluster configuration from an INI
// section with environment variable overrides
func LoadElasticsearchConfig(section *ini.Section) *ElasticsearchConfig {
	return &ElasticsearchConfig{
		URL:      getEnv("ELASTICSEARCH_URL", iniKey(section, "url", "http://localhost:9200")),
		Username: getEnv("ELASTICSEARCH_USER", iniKey(section, "user", "")),
		Password: getEnv("ELASTICSEARCH_PASSWORD", iniKey(section, "password", "")),

		FallbackIndex: getEnv("ELASTICSEARCH_FALLBACK_INDEX", iniKey(section, "fallback_index", "unit-metrics")),

		TaskPollInterval: time.Duration(getEnvAsInt("ELASTICSEARCH_TASK_POLL_INTERVAL_SECONDS", 5)) * time.Second,
		TaskPollTimeout:  time.Duration(getEnvAsInt("ELASTICSEARCH_TASK_POLL_TIMEOUT_SECONDS", 600)) * time.Second,
		DiscoveryLimit:   getEnvAsInt("ELASTICSEARCH_DISCOVERY_LIMIT", 50),
	}
}

// LoadS3Config loads object storage configuration from an INI section
// with environment variable overrides
func LoadS3Config(section *ini.Section) *S3Config {
	return &S3Config{
		Bucket:    getEnv("S3_BUCKET", iniKey(section, "bucket", "")),
		Region:    getEnv("S3_REGION", iniKey(section, "region", "us-east-1")),
		AccessKey: getEnv("S3_ACCESS_KEY", iniKey(section, "access_key", "")),
		SecretKey: getEnv("S3_SECRET_KEY", iniKey(section, "secret_key", "")),
		Endpoint:  getEnv("S3_ENDPOINT", iniKey(section, "endpoint", "")),
	}
}

// LoadRedisConfig loads session cache configuration from an INI section
// with environment variable overrides
func LoadRedisConfig(section *ini.Section) *RedisConfig {
	return &RedisConfig{
		Host:     getEnv("REDIS_HOST", iniKey(section, "host", "localhost")),
		Port:     getEnvAsInt("REDIS_PORT", iniKeyInt(section, "port", 6379)),
		Password: getEnv("REDIS_PASSWORD", iniKey(section, "password", "")),
		DB:       getEnvAsInt("REDIS_DB", iniKeyInt(section, "db", 0)),
	}
}

// LoadVerificationConfig loads the verification API target from an INI
// section with environment variable overrides
func LoadVerificationConfig(section *ini.Section) *VerificationConfig {
	return &VerificationConfig{
		BaseURL: getEnv("VERIFICATION_BASE_URL", iniKey(section, "base_url", "")),
		Timeout: time.Duration(getEnvAsInt("VERIFICATION_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// Validate checks the PostgreSQL parameters
func (c *PostgresConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

// Addr returns the host:port address for the session cache
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
