package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"verisay/go-client/internal/adapters/firestoredoc"
	"verisay/go-client/internal/adapters/gcsblob"
	"verisay/go-client/internal/config"
	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/internal/storage"
)

const sessionFile = "session.json"

// StorageBundle groups the persistence ports a client process runs against.
type StorageBundle struct {
	DB        *sql.DB
	Documents contracts.DocumentStore
	Blobs     contracts.BlobStore
	Feed      *storage.FeedStore
	Sessions  *storage.SessionStore

	closers []func() error
}

// BuildStorageBundle opens the local database and the configured document and blob
// backends. Everything opened so far is closed again when a later step fails.
func BuildStorageBundle(ctx context.Context, cfg config.Config, secret string) (bundle StorageBundle, err error) {
	defer func() {
		if err != nil {
			_ = bundle.Close()
			bundle = StorageBundle{}
		}
	}()

	db, err := storage.OpenDB(cfg.LocalDBPath())
	if err != nil {
		return bundle, fmt.Errorf("open local database: %w", err)
	}
	bundle.DB = db
	bundle.closers = append(bundle.closers, db.Close)
	bundle.Feed = storage.NewFeedStore(db)
	bundle.Sessions = storage.NewSessionStore(cfg.SessionPath(), secret)

	switch cfg.Documents.Backend {
	case config.DocumentsBackendFirestore:
		store, err := firestoredoc.Open(ctx, cfg.Documents.ProjectID, cfg.Documents.CredentialsFile, cfg.Documents.Collection)
		if err != nil {
			return bundle, fmt.Errorf("open firestore: %w", err)
		}
		bundle.Documents = store
		bundle.closers = append(bundle.closers, store.Close)
	default:
		bundle.Documents = storage.NewDocumentStore(db)
	}

	switch cfg.Blobs.Backend {
	case config.BlobsBackendGCS:
		store, err := gcsblob.Open(ctx, cfg.Blobs.Bucket, cfg.Blobs.CredentialsFile)
		if err != nil {
			return bundle, fmt.Errorf("open cloud storage: %w", err)
		}
		bundle.Blobs = store
		bundle.closers = append(bundle.closers, store.Close)
	default:
		store, err := storage.NewLocalBlobStore(cfg.Blobs.Dir, secret)
		if err != nil {
			return bundle, fmt.Errorf("open blob dir: %w", err)
		}
		bundle.Blobs = store
	}
	return bundle, nil
}

// Close releases backends in reverse order of opening.
func (b StorageBundle) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
