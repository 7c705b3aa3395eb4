package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const clientSchema = `
CREATE TABLE IF NOT EXISTS user_documents (
	uid TEXT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	photo_url TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS agreement_feed (
	id INTEGER NOT NULL,
	owner_id INTEGER NOT NULL,
	agreement_type TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	submitted_at TEXT NOT NULL,
	audio_uploaded INTEGER NOT NULL DEFAULT 0,
	audio_error TEXT NOT NULL DEFAULT '',
	faces_uploaded INTEGER NOT NULL DEFAULT 0,
	faces_error TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (owner_id, id)
);

CREATE INDEX IF NOT EXISTS idx_agreement_feed_owner_submitted
	ON agreement_feed(owner_id, submitted_at DESC);
`

// OpenDB opens (creating when needed) the local client database and applies the schema.
func OpenDB(path string) (*sql.DB, error) {
	return Open(path, clientSchema)
}

// Open opens a sqlite database at path and applies schema.
func Open(path, schema string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)
	if err := Migrate(db, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB, schema string) error {
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// storedTimeLayout keeps nine fractional digits so stored timestamps sort lexically.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(storedTimeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
