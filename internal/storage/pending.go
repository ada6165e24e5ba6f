package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/auth/models"
)

// PendingStorage holds the PKCE secrets across a full page navigation.
type PendingStorage interface {
	Save(ctx context.Context, p models.PendingAuthorization) error
	Load(ctx context.Context) (*models.PendingAuthorization, error)
	Delete(ctx context.Context) error
}

// PendingStore keeps the pending authorization as one JSON entry in an
// ephemeral store.
type PendingStore struct {
	store Store
}

// NewPendingStore wraps an ephemeral store.
func NewPendingStore(store Store) *PendingStore {
	return &PendingStore{store: store}
}

// Save overwrites any previous entry, so a stale verifier never outlives a new login.
func (p *PendingStore) Save(ctx context.Context, pending models.PendingAuthorization) error {
	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending authorization: %w", err)
	}
	if err := p.store.Set(ctx, constants.KeyPendingAuthorization, string(raw)); err != nil {
		return fmt.Errorf("failed to save pending authorization: %w", err)
	}
	return nil
}

// Load returns the entry, or nil when there is none. It does not delete it.
func (p *PendingStore) Load(ctx context.Context) (*models.PendingAuthorization, error) {
	raw, ok, err := p.store.Get(ctx, constants.KeyPendingAuthorization)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending authorization: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var pending models.PendingAuthorization
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, fmt.Errorf("failed to decode pending authorization: %w", err)
	}
	return &pending, nil
}

// Delete removes the entry.
func (p *PendingStore) Delete(ctx context.Context) error {
	return p.store.Remove(ctx, constants.KeyPendingAuthorization)
}
