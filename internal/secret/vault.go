// Package secret seals and opens sensitive_config blobs. Only the execution
// engine holds a Vault; every other component carries the sealed form or
// nothing at all.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealed is returned when a blob cannot be opened (wrong key, truncated,
// or tampered ciphertext).
var ErrSealed = errors.New("sensitive config cannot be opened")

// Vault encrypts credential material at rest with XChaCha20-Poly1305.
type Vault struct {
	key []byte
}

// NewVault creates a vault from a 32-byte key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Vault{key: k}, nil
}

// KeyFromBase64 decodes a standard-base64 vault key, as carried in env config.
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("vault key is not valid base64: %w", err)
	}
	return key, nil
}

// Seal encrypts a credential map into a self-contained blob
// (nonce || ciphertext). A nil or empty map seals to an empty blob.
func (v *Vault) Seal(values map[string]string) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	plaintext, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. An empty blob opens to an empty map.
func (v *Vault) Open(blob []byte) (map[string]string, error) {
	if len(blob) == 0 {
		return map[string]string{}, nil
	}
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if len(blob) < aead.NonceSize() {
		return nil, ErrSealed
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrSealed
	}
	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, ErrSealed
	}
	return values, nil
}
