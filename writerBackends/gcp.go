package writerbackends

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"imagerelay/credentials"
	"imagerelay/logger"
)

// GCSStore writes objects to a Google Cloud Storage bucket and issues V4
// signed URLs with the service account key it was opened with.
type GCSStore struct {
	client     *storage.Client
	bucket     string
	accessID   string
	privateKey []byte
}

// NewGCS opens a storage client from a decoded service account key.
func NewGCS(ctx context.Context, projectID, bucket string, key *credentials.ServiceKey) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(key.JSON))
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	logger.Infof("GCS backend ready: project=%s bucket=%s", projectID, bucket)
	return &GCSStore{
		client:     client,
		bucket:     bucket,
		accessID:   key.ClientEmail,
		privateKey: []byte(key.PrivateKey),
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	wc := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = "image/jpeg"

	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("Writer.Write: %w", err)
	}
	// Close completes the upload.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Debugf("uploaded object '%s' to bucket '%s' (%d bytes)", key, s.bucket, len(data))
	return nil
}

func (s *GCSStore) SignRead(_ context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		GoogleAccessID: s.accessID,
		PrivateKey:     s.privateKey,
		Method:         http.MethodGet,
		Expires:        time.Now().Add(ttl),
		Scheme:         storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	return u, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
