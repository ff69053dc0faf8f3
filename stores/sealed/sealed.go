// Package sealed wraps a questauth.KeyValueStore so values are encrypted at
// rest with XChaCha20-Poly1305. The store key is bound as additional data,
// so a value copied under a different key fails to open.
package sealed

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/panyam/questauth"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// ErrTampered is returned when a stored value cannot be authenticated.
var ErrTampered = errors.New("sealed value failed authentication")

// Store encrypts values before handing them to the inner store.
type Store struct {
	inner questauth.KeyValueStore
	aead  cipher.AEAD
}

// New wraps inner with a 32-byte key.
func New(inner questauth.KeyValueStore, key []byte) (*Store, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid sealing key: %w", err)
	}
	return &Store{inner: inner, aead: aead}, nil
}

// NewFromBase64 wraps inner with a base64 (standard encoding) key.
func NewFromBase64(inner questauth.KeyValueStore, key string) (*Store, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("sealing key is not base64: %w", err)
	}
	return New(inner, raw)
}

// GenerateKey returns a random base64 key suitable for NewFromBase64.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil || sealed == nil {
		return nil, err
	}

	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrTampered
	}
	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], []byte(key))
	if err != nil {
		return nil, ErrTampered
	}
	return plain, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.inner.Set(ctx, key, s.aead.Seal(nonce, nonce, value, []byte(key)))
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
