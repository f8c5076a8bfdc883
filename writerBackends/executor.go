package writerbackends

import (
	"context"
	"fmt"
	"time"

	"imagerelay/config"
	"imagerelay/credentials"
	"imagerelay/logger"
	"imagerelay/utils"
)

// Store is the object-storage capability used by the pipeline.
// Implementations are safe for concurrent use.
type Store interface {
	// Put durably writes data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error
	// SignRead issues a credential-free read URL valid for ttl.
	SignRead(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Open constructs the backend selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case config.BackendGCS:
		key, err := credentials.DecodeServiceKey(cfg.GoogleServiceKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load GCS credentials: %w", err)
		}
		store, err := NewGCS(ctx, cfg.GoogleProjectID, cfg.Bucket, key)
		if err != nil {
			return nil, fmt.Errorf("failed to open GCS backend: %w", err)
		}
		return store, nil
	case config.BackendS3:
		return NewS3(cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.S3Endpoint, cfg.Bucket), nil
	case config.BackendDirectServe:
		secret := cfg.URLSigningSecret
		if secret == "" {
			generated, err := utils.GenerateRandomHex(utils.MinKeyLength)
			if err != nil {
				return nil, fmt.Errorf("failed to generate URL signing secret: %w", err)
			}
			logger.Warn("URL_SIGNING_SECRET not set; signed URLs will not survive a restart")
			secret = generated
		}
		store, err := NewDirectServe(cfg.ServeDir, cfg.PublicBaseURL, []byte(secret))
		if err != nil {
			return nil, fmt.Errorf("failed to open directServe backend: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		logger.Warn("memory storage backend selected; objects are lost on restart")
		return NewMemory(cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.StorageBackend)
	}
}
