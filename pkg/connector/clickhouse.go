// pkg/connector/clickhouse.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/config"
)

// ClickHouseConnector implements the DatabaseConnector interface for
// the analytics store. Statements go over the HTTP interface.
type ClickHouseConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.ClickHouseConfig
}

// NewClickHouseConnector creates a new ClickHouse connection
func NewClickHouseConnector(ctx context.Context, cfg *config.ClickHouseConfig) (*ClickHouseConnector, error) {
	logger := zap.L().Named("clickhouse-connector")

	// Log connection attempt (without credentials)
	logger.Info("Connecting to ClickHouse",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Protocol:    clickhouse.HTTP,
		DialTimeout: 10 * time.Second,
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.QueryTimeout.Seconds()),
		},
	})

	// Configure connection pool
	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	// Verify connection
	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	connector := &ClickHouseConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *ClickHouseConnector) DB() *sql.DB {
	return c.db
}

// Validate verifies the ClickHouse connection and access rights
func (c *ClickHouseConnector) Validate() error {
	var version string
	err := c.db.QueryRow("SELECT version()").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to verify ClickHouse access: %w", err)
	}

	c.logger.Info("Connected to ClickHouse",
		zap.String("version", version),
		zap.String("database", c.cfg.Database))

	// Verify the analytics database is visible
	var name string
	err = c.db.QueryRow("SELECT name FROM system.databases WHERE name = ?", c.cfg.Database).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("database %s not found", c.cfg.Database)
		}
		return fmt.Errorf("failed to verify database %s: %w", c.cfg.Database, err)
	}

	return nil
}

// Close closes the database connection
func (c *ClickHouseConnector) Close() error {
	c.logger.Info("Closing ClickHouse connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// QueryWithTimeout executes a query with a timeout
func (c *ClickHouseConnector) QueryWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (*sql.Rows, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.QueryContext(queryCtx, query, args...)
}

// ExecWithTimeout executes a statement with a timeout
func (c *ClickHouseConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.ExecContext(queryCtx, query, args...)
}
