package firestoredoc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/pkg/models"
)

const DefaultCollection = "users"

var ErrDocumentIDEmpty = errors.New("document id is empty")

// Store keeps users/{uid} documents in Cloud Firestore. FIRESTORE_EMULATOR_HOST is honoured by
// the SDK.
type Store struct {
	client     *firestore.Client
	collection string
}

func Open(ctx context.Context, projectID, credentialsFile, collection string) (*Store, error) {
	var opts []option.ClientOption
	if path := strings.TrimSpace(credentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	client, err := firestore.NewClient(ctx, strings.TrimSpace(projectID), opts...)
	if err != nil {
		return nil, fmt.Errorf("open firestore: %w", err)
	}
	return New(client, collection), nil
}

func New(client *firestore.Client, collection string) *Store {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{client: client, collection: collection}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) GetUserDocument(ctx context.Context, uid string) (models.UserDocument, bool, error) {
	ref, err := s.doc(uid)
	if err != nil {
		return models.UserDocument{}, false, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return models.UserDocument{}, false, nil
	}
	if err != nil {
		return models.UserDocument{}, false, categorize(err)
	}
	var doc models.UserDocument
	if err := snap.DataTo(&doc); err != nil {
		return models.UserDocument{}, false, fmt.Errorf("decode user document: %w", err)
	}
	return doc, true, nil
}

func (s *Store) SetUserDocument(ctx context.Context, uid string, doc models.UserDocument) error {
	ref, err := s.doc(uid)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return categorize(err)
	}
	return nil
}

// UpdateUserProfile merges username and photoURL, leaving email and createdAt untouched.
func (s *Store) UpdateUserProfile(ctx context.Context, uid, username, photoURL string) error {
	ref, err := s.doc(uid)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, map[string]any{
		"username": username,
		"photoURL": photoURL,
	}, firestore.MergeAll)
	if err != nil {
		return categorize(err)
	}
	return nil
}

func (s *Store) doc(uid string) (*firestore.DocumentRef, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" || strings.Contains(uid, "/") {
		return nil, ErrDocumentIDEmpty
	}
	return s.client.Collection(s.collection).Doc(uid), nil
}

func categorize(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	default:
		return contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
}
