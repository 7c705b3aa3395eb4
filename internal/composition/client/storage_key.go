package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"verisay/go-client/internal/securestore"
)

const storageKeyFile = "storage.key"

var ErrStorageSecretRequired = errors.New("storage secret is required")

// StorageSecret resolves the passphrase that seals local state. An explicit secret wins,
// then the storage.key file. A fresh data directory gets a generated key. A directory
// that already holds sealed state but no key is refused, and plaintext state written
// before keys existed keeps working unsealed.
func StorageSecret(dataDir, configured string) (string, error) {
	if secret := strings.TrimSpace(configured); secret != "" {
		return secret, nil
	}
	keyPath := filepath.Join(dataDir, storageKeyFile)
	existing, err := os.ReadFile(keyPath)
	if err == nil {
		if secret := strings.TrimSpace(string(existing)); secret != "" {
			return secret, nil
		}
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	switch existingState(dataDir) {
	case stateSealed:
		return "", fmt.Errorf("%w: %s holds sealed state; set storage.secret or VERISAY_STORAGE_SECRET", ErrStorageSecretRequired, dataDir)
	case statePlain:
		return "", nil
	}
	secret, err := securestore.NewPassphrase()
	if err != nil {
		return "", err
	}
	if err := WriteStorageKey(dataDir, secret); err != nil {
		return "", err
	}
	return secret, nil
}

func WriteStorageKey(dataDir, secret string) error {
	keyPath := filepath.Join(dataDir, storageKeyFile)
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(keyPath, []byte(secret), 0o600)
}

type stateKind int

const (
	stateNone stateKind = iota
	statePlain
	stateSealed
)

func existingState(dataDir string) stateKind {
	raw, err := os.ReadFile(filepath.Join(dataDir, sessionFile))
	if err != nil || len(raw) == 0 {
		return stateNone
	}
	if securestore.IsEncrypted(raw) {
		return stateSealed
	}
	return statePlain
}
