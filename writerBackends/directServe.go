package writerbackends

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imagerelay/logger"
	"imagerelay/utils"
)

const tokenIssuer = "imagerelay"

var ErrInvalidKey = errors.New("object key must be a plain file name")

// DirectServeStore writes objects to a local directory that the HTTP server
// exposes under /files/. Read URLs carry an HS256 token bound to the key.
type DirectServeStore struct {
	baseDir       string
	publicBaseURL string
	signingKey    []byte
}

func NewDirectServe(baseDir, publicBaseURL string, signingKey []byte) (*DirectServeStore, error) {
	if len(signingKey) < utils.MinKeyLength {
		return nil, utils.ErrKeyTooShort
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create serve directory: %w", err)
	}
	return &DirectServeStore{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		signingKey:    signingKey,
	}, nil
}

func (s *DirectServeStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || !filepath.IsLocal(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.baseDir, key), nil
}

func (s *DirectServeStore) Put(ctx context.Context, key string, data []byte) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Write to a sibling temp file and rename so readers never see a partial object.
	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file %s: %w", fullPath, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move file into place %s: %w", fullPath, err)
	}

	logger.Debugf("saved file '%s' to '%s'", key, fullPath)
	return nil
}

func (s *DirectServeStore) SignRead(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	token, err := utils.SignToken(s.signingKey, tokenIssuer, key, time.Now().Add(ttl))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/files/%s?token=%s", s.publicBaseURL, url.PathEscape(key), url.QueryEscape(token)), nil
}

// Open verifies token for key and opens the stored object.
func (s *DirectServeStore) Open(key, token string) (*os.File, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if _, err := utils.VerifyToken(token, utils.VerifyConfig{
		SecretKey:       s.signingKey,
		ExpectedSubject: key,
	}); err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}
