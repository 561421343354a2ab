package storage

import (
	"fmt"

	"entitystore/config"
	"entitystore/observability"
	"entitystore/storage/adapters/fs"
	"entitystore/storage/adapters/minio"
	"entitystore/storage/adapters/s3"
	"entitystore/storage/types"
)

// Factory builds a backend from storage configuration
type Factory func(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) (types.ObjectStorage, error)

// DefaultFactory is the only place that knows about concrete backends
func DefaultFactory(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) (types.ObjectStorage, error) {
	switch cfg.Provider {
	case "s3":
		return s3.NewClient(cfg, logger, metrics)
	case "minio":
		return minio.NewClient(cfg, logger, metrics)
	case "fs":
		return fs.NewClient(cfg, logger, metrics)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %q", cfg.Provider)
	}
}
