package securestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// ReadJSON reads path into v, decrypting when a secret is configured. Plaintext files are
// rejected once a secret is set so a downgrade cannot slip past.
func ReadJSON(path, secret string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	payload, err := Open(secret, raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

// WriteJSON marshals v and writes it atomically with 0600 permissions, encrypted when secret
// is non-empty.
func WriteJSON(path, secret string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sealed, err := Seal(secret, payload)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, sealed)
}

// Seal encrypts data when secret is set and returns it unchanged otherwise.
func Seal(secret string, data []byte) ([]byte, error) {
	if strings.TrimSpace(secret) == "" {
		return data, nil
	}
	return Encrypt(secret, data)
}

func Open(secret string, data []byte) ([]byte, error) {
	if strings.TrimSpace(secret) == "" {
		if IsEncrypted(data) {
			return nil, ErrAuthFailed
		}
		return data, nil
	}
	return Decrypt(secret, data)
}

func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
