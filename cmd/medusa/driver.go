package main

import (
	"context"
	"fmt"

	"github.com/spotify/medusa-go/internal/config"
	"github.com/spotify/medusa-go/internal/storage"
)

// buildDriver constructs the storage.Driver named by cfg.Storage.
func buildDriver(ctx context.Context, cfg *config.Config) (storage.Driver, error) {
	switch cfg.Storage.StorageProvider {
	case "gcs":
		return storage.NewGCSDriver(ctx, storage.GCSConfig{
			Bucket:      cfg.Storage.BucketName,
			Prefix:      cfg.Storage.Prefix,
			KeyFile:     cfg.Storage.KeyFile,
			Parallelism: storage.DefaultUploadParallelism,
		})
	case "local":
		return storage.NewLocalDriver(cfg.Storage.BasePath, storage.DefaultUploadParallelism)
	default:
		return nil, fmt.Errorf("unsupported storage_provider %q", cfg.Storage.StorageProvider)
	}
}

func cassandraDataRoot(cfg *config.Config) string {
	return cfg.Cassandra.DataDir
}
