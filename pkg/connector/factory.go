// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/config"
)

// ClientFactory creates store connectors and clients
type ClientFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClientFactory creates a new client factory
func NewClientFactory(cfg *config.Config, logger *zap.Logger) *ClientFactory {
	return &ClientFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreatePostgresConnector creates a new PostgreSQL connector
func (f *ClientFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	f.logger.Info("Creating PostgreSQL connector")

	connector, err := NewPostgresConnector(ctx, f.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	return connector, nil
}

// CreateClickHouseConnector creates a new ClickHouse connector
func (f *ClientFactory) CreateClickHouseConnector(ctx context.Context) (*ClickHouseConnector, error) {
	f.logger.Info("Creating ClickHouse connector")

	connector, err := NewClickHouseConnector(ctx, f.cfg.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("failed to create ClickHouse connector: %w", err)
	}

	return connector, nil
}

// CreateSearchClient creates a client for the search cluster
func (f *ClientFactory) CreateSearchClient() (*elasticsearch.Client, error) {
	f.logger.Info("Creating Elasticsearch client",
		zap.String("url", f.cfg.Elasticsearch.URL))

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{f.cfg.Elasticsearch.URL},
		Username:  f.cfg.Elasticsearch.Username,
		Password:  f.cfg.Elasticsearch.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	return client, nil
}

// CreateCacheClient creates a client for the session cache
func (f *ClientFactory) CreateCacheClient() *redis.Client {
	f.logger.Info("Creating Redis client",
		zap.String("addr", f.cfg.Redis.Addr()),
		zap.Int("db", f.cfg.Redis.DB))

	return redis.NewClient(&redis.Options{
		Addr:     f.cfg.Redis.Addr(),
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
	})
}

// CreateObjectClient creates a client for object storage
func (f *ClientFactory) CreateObjectClient(ctx context.Context) (*s3.Client, error) {
	f.logger.Info("Creating S3 client",
		zap.String("bucket", f.cfg.S3.Bucket),
		zap.String("region", f.cfg.S3.Region))

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(f.cfg.S3.Region),
	}
	if f.cfg.S3.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(f.cfg.S3.AccessKey, f.cfg.S3.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if f.cfg.S3.Endpoint != "" {
			o.BaseEndpoint = &f.cfg.S3.Endpoint
			o.UsePathStyle = true
		}
	})

	return client, nil
}
