// Package secrets encrypts notification channel credentials at rest.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecrypt indicates a ciphertext that could not be authenticated, which
// usually means the encryption key changed since the value was stored.
var ErrDecrypt = errors.New("secrets: decryption failed")

const (
	saltSize  = 16
	kdfRounds = 100000
	keySize   = 32
)

// Box encrypts and decrypts byte slices with a key derived from a
// passphrase. The zero value is unusable; construct with New.
type Box struct {
	passphrase []byte
}

// LoadOrCreateKey resolves the encryption passphrase. An explicitly
// configured key wins; otherwise the key file is read, and on first run a
// random key is generated and persisted there so restarts can decrypt
// stored credentials.
func LoadOrCreateKey(configured, path string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		key := strings.TrimSpace(string(raw))
		if key == "" {
			return "", fmt.Errorf("secrets: key file %s is empty", path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read key file: %v", err)
	}

	buf := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %v", err)
	}
	key := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(key+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to persist encryption key: %v", err)
	}
	return key, nil
}

// New creates a Box from the configured passphrase.
func New(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("secrets: empty encryption key")
	}
	return &Box{passphrase: []byte(passphrase)}, nil
}

// Encrypt seals plaintext. The output embeds the KDF salt and the GCM nonce
// so each ciphertext is self-contained.
func (b *Box) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %v", err)
	}

	gcm, err := b.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %v", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Tampered or foreign-key
// ciphertexts return ErrDecrypt.
func (b *Box) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < saltSize {
		return nil, ErrDecrypt
	}
	salt := ciphertext[:saltSize]

	gcm, err := b.aead(salt)
	if err != nil {
		return nil, err
	}

	rest := ciphertext[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func (b *Box) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(b.passphrase, salt, kdfRounds, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %v", err)
	}
	return gcm, nil
}
