// Package credential encrypts provider API keys before they land in
// the configuration table. Values are sealed with AES-256-GCM under a
// machine-derived key, so a copied database file does not leak keys.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// SealedPrefix marks sealed values in storage.
const SealedPrefix = "enc:v1:"

var (
	ErrOpenFailed    = errors.New("credential: decryption failed")
	ErrInvalidFormat = errors.New("credential: invalid sealed format")
)

// ConfigKey returns the configuration-table key under which a
// provider's API key is stored, e.g. "openai.api_key".
func ConfigKey(provider string) string {
	return provider + ".api_key"
}

// Vault seals and opens credential values.
type Vault struct {
	key []byte
}

// NewVault derives the encryption key from machine identifiers, so
// sealed values only open on the machine that sealed them.
func NewVault() (*Vault, error) {
	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return &Vault{key: key}, nil
}

// Seal encrypts a plaintext value into a storable string. Empty input
// stays empty.
func (v *Vault) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored value back to plaintext. Unsealed values pass
// through unchanged, so keys written before encryption shipped keep
// working.
func (v *Vault) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}

	encoded := strings.TrimPrefix(stored, SealedPrefix)
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrInvalidFormat, err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrInvalidFormat
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plaintext), nil
}

// IsSealed reports whether a stored value is encrypted.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// deriveKey hashes machine identifiers into a 32-byte AES-256 key that
// is stable across restarts on the same host and user.
func deriveKey() ([]byte, error) {
	var entropy strings.Builder

	hostname, _ := os.Hostname()
	entropy.WriteString(hostname)

	home, _ := os.UserHomeDir()
	entropy.WriteString(home)

	entropy.WriteString(runtime.GOOS)
	entropy.WriteString(runtime.GOARCH)

	entropy.WriteString("mnemon-credential-vault-v1")

	if uid := os.Getuid(); uid != -1 {
		fmt.Fprintf(&entropy, "uid:%d", uid)
	}
	if username := os.Getenv("USER"); username != "" {
		entropy.WriteString(username)
	}

	hash := sha256.Sum256([]byte(entropy.String()))
	return hash[:], nil
}

// Mask returns a display form of a secret: first and last four
// characters when long enough, asterisks otherwise.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
