package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"verisay/go-client/pkg/models"
)

var ErrDocumentIDEmpty = errors.New("document id is empty")

// DocumentStore keeps users/{uid} documents in the local SQLite database.
type DocumentStore struct {
	db *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) GetUserDocument(ctx context.Context, uid string) (models.UserDocument, bool, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return models.UserDocument{}, false, ErrDocumentIDEmpty
	}
	var (
		doc       models.UserDocument
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT username, email, photo_url, created_at FROM user_documents WHERE uid = ?`, uid,
	).Scan(&doc.Username, &doc.Email, &doc.PhotoURL, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserDocument{}, false, nil
	}
	if err != nil {
		return models.UserDocument{}, false, fmt.Errorf("get user document: %w", err)
	}
	doc.CreatedAt = parseTime(createdAt)
	return doc, true, nil
}

// SetUserDocument overwrites the whole document.
func (s *DocumentStore) SetUserDocument(ctx context.Context, uid string, doc models.UserDocument) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ErrDocumentIDEmpty
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_documents (uid, username, email, photo_url, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			photo_url = excluded.photo_url,
			created_at = excluded.created_at`,
		uid, doc.Username, doc.Email, doc.PhotoURL, formatTime(doc.CreatedAt))
	if err != nil {
		return fmt.Errorf("set user document: %w", err)
	}
	return nil
}

// UpdateUserProfile merges username and photoURL into the document, creating it when absent.
func (s *DocumentStore) UpdateUserProfile(ctx context.Context, uid, username, photoURL string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ErrDocumentIDEmpty
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_documents (uid, username, photo_url)
		VALUES (?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			username = excluded.username,
			photo_url = excluded.photo_url`,
		uid, username, photoURL)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}
