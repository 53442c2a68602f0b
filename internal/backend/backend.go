// Package backend opens the record and object stores selected in config.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jigsaw-be/internal/config"
	"github.com/cuongbtq/jigsaw-be/internal/storage"
	"github.com/cuongbtq/jigsaw-be/internal/storage/dynamo"
	"github.com/cuongbtq/jigsaw-be/internal/storage/memory"
	"github.com/cuongbtq/jigsaw-be/internal/storage/objectstore"
	"github.com/cuongbtq/jigsaw-be/internal/storage/postgres"
	"github.com/cuongbtq/jigsaw-be/shared/awsclient"
	"github.com/cuongbtq/jigsaw-be/shared/postgresql"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Backend holds the opened stores and the connections behind them
type Backend struct {
	Records storage.RecordStore
	Objects storage.ObjectStore
	Signer  storage.UploadSigner

	checks  map[string]HealthCheck
	closers []func() error
	aws     *awsclient.Client
	logger  *slog.Logger
}

type objectStore interface {
	storage.ObjectStore
	storage.UploadSigner
}

// Open connects the drivers named in cfg.Storage. On error every connection
// opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{
		checks: make(map[string]HealthCheck),
		logger: logger,
	}

	if err := b.openRecords(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openObjects(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}

	logger.Info("Storage backend ready",
		slog.String("records", cfg.Storage.Records),
		slog.String("objects", cfg.Storage.Objects),
	)
	return b, nil
}

func (b *Backend) openRecords(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Records {
	case config.RecordsPostgres:
		client, err := postgresql.NewClient(ctx, &postgresql.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, b.logger)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, client.Close)
		b.checks["postgres"] = client.HealthCheck

		store := postgres.NewStore(client.GetDB(), b.logger)
		if cfg.Storage.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("failed to apply postgres schema: %w", err)
			}
		}
		b.Records = store

	case config.RecordsDynamoDB:
		client, err := b.awsClient(ctx, cfg)
		if err != nil {
			return err
		}
		store := dynamo.NewStore(client.DynamoDB(), &dynamo.Config{
			JobsTable:   cfg.AWS.JobsTable,
			PiecesTable: cfg.AWS.PiecesTable,
		}, b.logger)
		if cfg.Storage.AutoMigrate {
			if err := store.EnsureTables(ctx); err != nil {
				return fmt.Errorf("failed to create dynamodb tables: %w", err)
			}
		}
		b.Records = store

	case config.RecordsMemory:
		b.logger.Warn("Using in-memory record store; records are lost on exit and not shared between processes")
		b.Records = memory.NewRecordStore()

	default:
		return fmt.Errorf("unsupported storage records driver: %q", cfg.Storage.Records)
	}
	return nil
}

func (b *Backend) openObjects(ctx context.Context, cfg *config.Config) error {
	var store objectStore

	switch cfg.Storage.Objects {
	case config.ObjectsS3:
		client, err := b.awsClient(ctx, cfg)
		if err != nil {
			return err
		}
		store = objectstore.NewS3Store(client.S3(), cfg.AWS.Bucket)

	case config.ObjectsFilesystem:
		fs, err := objectstore.NewFileStore(cfg.Storage.FilesystemPath)
		if err != nil {
			return err
		}
		store = fs

	case config.ObjectsMemory:
		b.logger.Warn("Using in-memory object store; images are lost on exit and not shared between processes")
		store = memory.NewObjectStore()

	default:
		return fmt.Errorf("unsupported storage objects driver: %q", cfg.Storage.Objects)
	}

	b.Objects = store
	b.Signer = store
	return nil
}

// awsClient loads the AWS config once and shares it between S3 and DynamoDB
func (b *Backend) awsClient(ctx context.Context, cfg *config.Config) (*awsclient.Client, error) {
	if b.aws != nil {
		return b.aws, nil
	}
	client, err := awsclient.NewClient(ctx, &awsclient.Config{
		Region:          cfg.AWS.Region,
		Endpoint:        cfg.AWS.Endpoint,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	}, b.logger)
	if err != nil {
		return nil, err
	}
	b.aws = client
	return client, nil
}

// HealthChecks returns the checks of connections that support one, by name
func (b *Backend) HealthChecks() map[string]HealthCheck {
	out := make(map[string]HealthCheck, len(b.checks))
	for name, check := range b.checks {
		out[name] = check
	}
	return out
}

// Close releases every connection, newest first
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
