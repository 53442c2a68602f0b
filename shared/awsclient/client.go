package awsclient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds AWS connection configuration
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Client bundles the loaded AWS configuration with the service clients built from it
type Client struct {
	cfg    aws.Config
	config *Config
	logger *slog.Logger
}

// NewClient loads AWS configuration. Static credentials are used when both
// keys are set; otherwise the default credential chain applies.
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	cfg, err := loadConfig(ctx, config)
	if err != nil {
		logger.Error("Failed to load AWS config",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("AWS config loaded",
		slog.String("region", config.Region),
		slog.String("endpoint", config.Endpoint),
		slog.Bool("static_credentials", config.AccessKeyID != ""),
	)

	return &Client{
		cfg:    cfg,
		config: config,
		logger: logger,
	}, nil
}

func loadConfig(ctx context.Context, c *Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.Region),
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// S3 returns an S3 client. A custom endpoint switches to path-style addressing
// for S3-compatible services.
func (c *Client) S3() *s3.Client {
	return s3.NewFromConfig(c.cfg, func(o *s3.Options) {
		if c.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.config.Endpoint)
			o.UsePathStyle = true
		}
	})
}

// DynamoDB returns a DynamoDB client
func (c *Client) DynamoDB() *dynamodb.Client {
	return dynamodb.NewFromConfig(c.cfg, func(o *dynamodb.Options) {
		if c.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.config.Endpoint)
		}
	})
}
