package securestore

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/tyler-smith/go-bip39"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	plain, err := Decrypt("pass", data)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestDecryptTamperedFailsDeterministically(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	data[len(data)-2] ^= 0xFF
	_, err = Decrypt("pass", data)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	data, err := Encrypt("right", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := Decrypt("wrong", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestEncryptRejectsEmptyPassphrase(t *testing.T) {
	if _, err := Encrypt("  ", []byte("x")); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}

func TestWriteReadJSONWithSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	in := map[string]string{"id_token": "tok-123"}
	if err := WriteJSON(path, "s3cret", in); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read raw failed: %v", err)
	}
	if strings.Contains(string(raw), "tok-123") {
		t.Fatal("token must not be stored in plaintext")
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Fatalf("expected 0600, got %04o", info.Mode().Perm())
		}
	}
	var out map[string]string
	if err := ReadJSON(path, "s3cret", &out); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if out["id_token"] != "tok-123" {
		t.Fatalf("unexpected roundtrip value: %v", out)
	}
}

func TestOpenRejectsPlaintextWhenSecretConfigured(t *testing.T) {
	if _, err := Open("s3cret", []byte(`{"a":1}`)); !errors.Is(err, ErrPlaintextData) {
		t.Fatalf("expected ErrPlaintextData, got %v", err)
	}
	sealed, err := Seal("s3cret", []byte("x"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := Open("", sealed); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed without secret, got %v", err)
	}
}

func TestNewPassphraseIsValidMnemonic(t *testing.T) {
	phrase, err := NewPassphrase()
	if err != nil {
		t.Fatalf("new passphrase: %v", err)
	}
	if words := strings.Fields(phrase); len(words) != 12 {
		t.Fatalf("expected 12 words, got %d", len(words))
	}
	if !bip39.IsMnemonicValid(phrase) {
		t.Fatalf("passphrase is not a valid mnemonic: %q", phrase)
	}
}
