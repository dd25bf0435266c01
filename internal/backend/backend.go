// Package backend opens the store.Client a configuration names.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/jacentio/docrepo/internal/config"
	"github.com/jacentio/docrepo/store"
	"github.com/jacentio/docrepo/store/dynamo"
	"github.com/jacentio/docrepo/store/memstore"
	"github.com/jacentio/docrepo/store/mongodb"
	"github.com/jacentio/docrepo/store/sqlite"
)

// Open connects to the configured backend. The caller closes the client.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case config.BackendMemory:
		c := memstore.DefaultConfig()
		if cfg.Database != "" {
			c.DefaultDatabase = cfg.Database
		}
		logger.Debug("using in-memory store")
		return memstore.New(c), nil

	case config.BackendDynamoDB:
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.DynamoDB.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.DynamoDB.Region))
		}
		if cfg.DynamoDB.Profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.DynamoDB.Profile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		c := dynamo.DefaultConfig()
		c.TablePrefix = cfg.DynamoDB.TablePrefix
		c.Endpoint = cfg.DynamoDB.Endpoint
		c.PollInterval = cfg.DynamoDB.PollInterval.Duration()
		c.TTLAttribute = cfg.DynamoDB.TTLAttribute
		if cfg.Database != "" {
			c.DefaultDatabase = cfg.Database
		}
		logger.Debug("using DynamoDB", "region", awsCfg.Region, "endpoint", c.Endpoint, "table_prefix", c.TablePrefix)
		return dynamo.NewFromConfig(awsCfg, c), nil

	case config.BackendMongoDB:
		c := mongodb.DefaultConfig()
		c.URI = cfg.MongoDB.URI
		c.ConnectTimeout = cfg.MongoDB.ConnectTimeout.Duration()
		c.DefaultDatabase = cfg.Database
		client, err := mongodb.Connect(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("connect MongoDB: %w", err)
		}
		logger.Debug("using MongoDB", "database", client.DefaultDatabase())
		return client, nil

	case config.BackendSQLite:
		c := sqlite.DefaultConfig()
		c.Path = cfg.SQLite.Path
		if cfg.Database != "" {
			c.DefaultDatabase = cfg.Database
		}
		client, err := sqlite.Open(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("open SQLite: %w", err)
		}
		logger.Debug("using SQLite", "path", c.Path)
		return client, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
