package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore stores each key as a separate secret in the OS keyring
// (macOS Keychain, Windows Credential Manager, Secret Service on Linux).
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a keyring store under the given service name.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (k *KeyringStore) Get(_ context.Context, key string) (string, bool, error) {
	v, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	return v, true, nil
}

func (k *KeyringStore) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("failed to write %s to keyring: %w", key, err)
	}
	return nil
}

func (k *KeyringStore) Remove(_ context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			errs = append(errs, fmt.Errorf("failed to delete %s from keyring: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
