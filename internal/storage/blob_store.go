package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"verisay/go-client/internal/securestore"
)

const localBlobScheme = "blob://"

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrInvalidBlobPath = errors.New("invalid blob object path")
)

// LocalBlobStore keeps objects under a directory, encrypted at rest when a secret is set.
// Handles have the form blob://<object path>.
type LocalBlobStore struct {
	dir    string
	secret string
}

func NewLocalBlobStore(dir, secret string) (*LocalBlobStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("blob directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalBlobStore{dir: dir, secret: strings.TrimSpace(secret)}, nil
}

func (s *LocalBlobStore) PutObject(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("blob data is empty")
	}
	sealed, err := securestore.Seal(s.secret, data)
	if err != nil {
		return "", err
	}
	if err := securestore.WriteFileAtomic(s.filePath(clean), sealed); err != nil {
		return "", fmt.Errorf("write blob %s: %w", clean, err)
	}
	return localBlobScheme + clean, nil
}

// GetObject resolves a blob:// handle or a bare object path.
func (s *LocalBlobStore) GetObject(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := cleanObjectPath(strings.TrimPrefix(strings.TrimSpace(handle), localBlobScheme))
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.filePath(clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return securestore.Open(s.secret, raw)
}

func (s *LocalBlobStore) filePath(clean string) string {
	return filepath.Join(s.dir, filepath.FromSlash(clean))
}

func cleanObjectPath(objectPath string) (string, error) {
	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "\\") {
		return "", ErrInvalidBlobPath
	}
	clean := path.Clean(objectPath)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidBlobPath
	}
	return clean, nil
}
