// Package keyring stores questauth values in the operating system's
// credential store (macOS Keychain, Windows Credential Manager, Secret
// Service on Linux).
package keyring

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keychain service name entries are filed under.
const DefaultService = "questauth"

// Store is a KeyValueStore backed by the OS keychain. Keys are stored as
// the entry's user name under one service.
type Store struct {
	service string
}

// NewStore creates a Store for service, or DefaultService when empty.
func NewStore(service string) *Store {
	if service == "" {
		service = DefaultService
	}
	return &Store{service: service}
}

// Get returns nil, nil when there is no entry for key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get %s/%s: %w", s.service, key, err)
	}
	return []byte(v), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if err := keyring.Set(s.service, key, string(value)); err != nil {
		return fmt.Errorf("keyring set %s/%s: %w", s.service, key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := keyring.Delete(s.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s/%s: %w", s.service, key, err)
	}
	return nil
}
