// Package storage provides the key-value persistence behind the token store
// and the ephemeral PKCE entry. Stores hold opaque strings; callers own the
// serialization.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/brizzai/tutor-auth/internal/config"
)

// Store is a durable or ephemeral key-value store. Every call completes its
// I/O before returning, so sequential calls are ordered. Errors are never swallowed.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes all keys; absent keys are not an error.
	Remove(ctx context.Context, keys ...string) error
}

// New opens the backend selected by cfg.Backend.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return NewMemoryStore(), nil
	case config.StorageFile:
		return NewFileStore(expandHome(cfg.Path)), nil
	case config.StorageKeyring:
		return NewKeyringStore(cfg.KeyringService), nil
	case config.StorageSQLite:
		return OpenSQLiteStore(expandHome(cfg.Path))
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// Close releases the store if it holds resources.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
