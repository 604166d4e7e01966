package objstore

import (
	"context"
	"fmt"

	"arstudio/internal/config"
)

// NewObjectStoreFromConfig creates an ObjectStore implementation based on
// the object store config type.
func NewObjectStoreFromConfig(ctx context.Context, cfg config.ObjectStoreConfig) (ObjectStore, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryObjectStore(), nil
	case "s3":
		return NewS3ObjectStore(ctx, cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey)
	default:
		return nil, fmt.Errorf("unknown object store type: %s", cfg.Type)
	}
}
