package secrets

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := New("test-key")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	plaintext := []byte("smtp-password-123")
	ciphertext, err := box.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	got, err := box.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestEncryptDistinctCiphertexts(t *testing.T) {
	box, _ := New("test-key")
	a, err := box.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	b, err := box.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	box, _ := New("key-one")
	other, _ := New("key-two")

	ciphertext, err := box.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := other.Decrypt(ciphertext); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Decrypt() with wrong key error = %v, want ErrDecrypt", err)
	}
}

func TestDecryptTampered(t *testing.T) {
	box, _ := New("test-key")
	ciphertext, err := box.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0x01
	if _, err := box.Decrypt(ciphertext); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Decrypt() of tampered ciphertext error = %v, want ErrDecrypt", err)
	}
}

func TestDecryptTruncated(t *testing.T) {
	box, _ := New("test-key")
	if _, err := box.Decrypt([]byte{1, 2, 3}); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Decrypt() of short input error = %v, want ErrDecrypt", err)
	}
}

func TestNewEmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") succeeded, want error")
	}
}

func TestLoadOrCreateKeyConfiguredWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upswatch.key")
	key, err := LoadOrCreateKey("from-env", path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey() error: %v", err)
	}
	if key != "from-env" {
		t.Errorf("LoadOrCreateKey() = %q, want configured key", key)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("key file created despite a configured key")
	}
}

func TestLoadOrCreateKeyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upswatch.key")

	first, err := LoadOrCreateKey("", path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey() error: %v", err)
	}
	if first == "" {
		t.Fatal("LoadOrCreateKey() generated an empty key")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file mode = %o, want 0600", perm)
	}

	second, err := LoadOrCreateKey("", path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey() reread error: %v", err)
	}
	if second != first {
		t.Errorf("key changed between runs: %q vs %q", first, second)
	}
}
