package devapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"verisay/go-client/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS identity_accounts (
	uid TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash BLOB NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	photo_url TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS identity_tokens (
	token TEXT PRIMARY KEY,
	uid TEXT NOT NULL,
	expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	firebase_uid TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	full_name TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agreements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attachments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agreement_id INTEGER NOT NULL REFERENCES agreements(id),
	field TEXT NOT NULL,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data BLOB NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attachments_agreement ON attachments(agreement_id);
`

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

type Account struct {
	UID          string
	Email        string
	PasswordHash []byte
	DisplayName  string
	PhotoURL     string
	CreatedAt    time.Time
}

type User struct {
	ID          int64  `json:"id"`
	FirebaseUID string `json:"firebaseUid"`
	Email       string `json:"email"`
	FullName    string `json:"fullName"`
}

type Agreement struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type Attachment struct {
	AgreementID int64
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Store is the dev API's sqlite persistence.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := storage.Open(path, schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateAccount(ctx context.Context, a Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identity_accounts(uid, email, password_hash, display_name, photo_url, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		a.UID, normalizeEmail(a.Email), a.PasswordHash, a.DisplayName, a.PhotoURL, a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return ErrEmailTaken
	}
	return err
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (Account, error) {
	return s.account(ctx, `SELECT uid, email, password_hash, display_name, photo_url, created_at FROM identity_accounts WHERE email = ?`, normalizeEmail(email))
}

func (s *Store) AccountByUID(ctx context.Context, uid string) (Account, error) {
	return s.account(ctx, `SELECT uid, email, password_hash, display_name, photo_url, created_at FROM identity_accounts WHERE uid = ?`, uid)
}

func (s *Store) account(ctx context.Context, query string, arg any) (Account, error) {
	var a Account
	var created string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&a.UID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.PhotoURL, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return a, nil
}

// UpdateAccountProfile changes only the fields that are non-nil.
func (s *Store) UpdateAccountProfile(ctx context.Context, uid string, displayName, photoURL *string) error {
	if displayName != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE identity_accounts SET display_name = ? WHERE uid = ?`, *displayName, uid); err != nil {
			return err
		}
	}
	if photoURL != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE identity_accounts SET photo_url = ? WHERE uid = ?`, *photoURL, uid); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveToken(ctx context.Context, token, uid string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO identity_tokens(token, uid, expires_at) VALUES(?, ?, ?)`,
		token, uid, expiresAt.UTC().Format(time.RFC3339Nano))
	return err
}

// TokenOwner returns the uid behind a token that has not expired at now.
func (s *Store) TokenOwner(ctx context.Context, token string, now time.Time) (string, error) {
	var uid, expires string
	err := s.db.QueryRowContext(ctx, `SELECT uid, expires_at FROM identity_tokens WHERE token = ?`, token).Scan(&uid, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, expires)
	if err != nil || !now.Before(expiresAt) {
		return "", ErrNotFound
	}
	return uid, nil
}

// SaveUser inserts the user or refreshes email and name of an existing firebase uid.
func (s *Store) SaveUser(ctx context.Context, u User, now time.Time) (User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(firebase_uid, email, full_name, created_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(firebase_uid) DO UPDATE SET email = excluded.email, full_name = excluded.full_name`,
		u.FirebaseUID, u.Email, u.FullName, now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return User{}, err
	}
	return s.UserByFirebaseUID(ctx, u.FirebaseUID)
}

func (s *Store) UserByFirebaseUID(ctx context.Context, uid string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `SELECT id, firebase_uid, email, full_name FROM users WHERE firebase_uid = ?`, uid).
		Scan(&u.ID, &u.FirebaseUID, &u.Email, &u.FullName)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) CreateAgreement(ctx context.Context, a Agreement) (Agreement, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO agreements(user_id, type, status, created_at) VALUES(?, ?, ?, ?)`,
		a.UserID, a.Type, a.Status, a.CreatedAt)
	if err != nil {
		return Agreement{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement id: %w", err)
	}
	a.ID = id
	return a, nil
}

func (s *Store) AgreementExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM agreements WHERE id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveAttachments stores all parts of one upload atomically.
func (s *Store) SaveAttachments(ctx context.Context, parts []Attachment, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	created := now.UTC().Format(time.RFC3339Nano)
	for _, p := range parts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attachments(agreement_id, field, filename, content_type, data, created_at)
			VALUES(?, ?, ?, ?, ?, ?)`,
			p.AgreementID, p.Field, p.Filename, p.ContentType, p.Data, created,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Attachments(ctx context.Context, agreementID int64) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agreement_id, field, filename, content_type, data FROM attachments
		WHERE agreement_id = ? ORDER BY id`, agreementID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.AgreementID, &a.Field, &a.Filename, &a.ContentType, &a.Data); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CountAgreements(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM agreements`).Scan(&n)
	return n, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
