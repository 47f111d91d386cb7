package stores

import (
	"context"
	"entity-store/config"
	"entity-store/core"
	"entity-store/stores/aws"
	"entity-store/stores/filesystem"
	"entity-store/stores/memory"
	"entity-store/stores/postgres"
	"entity-store/stores/sqlite"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Backend hands out one record store per collection over a shared
// connection.
type Backend struct {
	open  func(collection string) (core.RecordStore, error)
	close func() error
}

func Open(ctx context.Context, cfg config.Storage) (*Backend, error) {
	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}
	backend := &Backend{close: func() error { return nil }}

	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.LocalPath
		backend.open = func(collection string) (core.RecordStore, error) {
			return filesystem.NewRecordStore(cfg.LocalPath, collection)
		}
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		db, err := sqlite.Open(cfg.DataSourceName)
		if err != nil {
			return nil, err
		}
		backend.open = func(collection string) (core.RecordStore, error) {
			return sqlite.NewRecordStore(db, collection), nil
		}
		backend.close = db.Close
	case "postgres":
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		backend.open = func(collection string) (core.RecordStore, error) {
			return postgres.NewRecordStore(pool, collection), nil
		}
		backend.close = func() error {
			pool.Close()
			return nil
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME is required for s3 storage")
		}
		storageField["bucketName"] = cfg.S3Bucket
		storageField["endpoint"] = cfg.S3Endpoint
		client, err := aws.NewClient(ctx, cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		backend.open = func(collection string) (core.RecordStore, error) {
			return aws.NewRecordStore(client, cfg.S3Bucket, collection), nil
		}
	case "", "memory":
		storageField["storageType"] = "in-memory"
		backend.open = func(collection string) (core.RecordStore, error) {
			return memory.NewRecordStore(), nil
		}
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	logrus.WithFields(storageField).Info("Use storage")
	return backend, nil
}

// RecordStore returns the store for one collection.
func (b *Backend) RecordStore(collection string) (core.RecordStore, error) {
	return b.open(collection)
}

func (b *Backend) Close() error {
	return b.close()
}
