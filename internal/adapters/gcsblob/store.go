package gcsblob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"verisay/go-client/internal/domains/contracts"
)

const publicHost = "https://storage.googleapis.com"

var ErrInvalidObjectPath = errors.New("invalid object path")

// Store writes objects to a Cloud Storage bucket and hands back their public URL.
type Store struct {
	client *storage.Client
	bucket string
}

func Open(ctx context.Context, bucket, credentialsFile string) (*Store, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("gcs bucket is empty")
	}
	var opts []option.ClientOption
	if path := strings.TrimSpace(credentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("open cloud storage: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) PutObject(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" || strings.HasPrefix(objectPath, "/") {
		return "", ErrInvalidObjectPath
	}
	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	}
	if err := w.Close(); err != nil {
		return "", contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	}
	return PublicURL(s.bucket, objectPath), nil
}

// PublicURL is the durable handle of an object.
func PublicURL(bucket, objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return publicHost + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}
