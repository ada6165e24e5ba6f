package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/auth/models"
)

// TokenStore owns the credential pair and the cached user profile. It has no
// policy of its own; the flow controller and the requester decide when to write.
type TokenStore struct {
	store Store
}

// NewTokenStore wraps a durable store.
func NewTokenStore(store Store) *TokenStore {
	return &TokenStore{store: store}
}

// AccessToken returns the stored access token, or "" when absent.
func (t *TokenStore) AccessToken(ctx context.Context) (string, error) {
	v, _, err := t.store.Get(ctx, constants.KeyAccessToken)
	return v, err
}

// RefreshToken returns the stored refresh token, or "" when absent.
func (t *TokenStore) RefreshToken(ctx context.Context) (string, error) {
	v, _, err := t.store.Get(ctx, constants.KeyRefreshToken)
	return v, err
}

// Credentials returns the stored pair, or nil when there is no access token.
func (t *TokenStore) Credentials(ctx context.Context) (*models.Credentials, error) {
	access, err := t.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, nil
	}
	refresh, err := t.RefreshToken(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// SaveCredentials writes the access token, then the refresh token. An empty
// refresh token removes the stored one, so a pair never mixes two logins.
// The backend has no multi-key transaction; a crash in between leaves a token
// that the startup check re-verifies anyway.
func (t *TokenStore) SaveCredentials(ctx context.Context, creds models.Credentials) error {
	if err := t.store.Set(ctx, constants.KeyAccessToken, creds.AccessToken); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	if creds.RefreshToken == "" {
		if err := t.store.Remove(ctx, constants.KeyRefreshToken); err != nil {
			return fmt.Errorf("failed to remove stale refresh token: %w", err)
		}
		return nil
	}
	if err := t.store.Set(ctx, constants.KeyRefreshToken, creds.RefreshToken); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// SetAccessToken overwrites only the access token (refresh path).
func (t *TokenStore) SetAccessToken(ctx context.Context, token string) error {
	if err := t.store.Set(ctx, constants.KeyAccessToken, token); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

// CachedProfile returns the locally cached profile, or nil.
func (t *TokenStore) CachedProfile(ctx context.Context) (*models.UserProfile, error) {
	raw, ok, err := t.store.Get(ctx, constants.KeyUserProfile)
	if err != nil || !ok {
		return nil, err
	}
	var user models.UserProfile
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("failed to decode cached profile: %w", err)
	}
	return &user, nil
}

// SaveProfile caches the profile as JSON. A nil profile is ignored.
func (t *TokenStore) SaveProfile(ctx context.Context, user *models.UserProfile) error {
	if user == nil {
		return nil
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := t.store.Set(ctx, constants.KeyUserProfile, string(raw)); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Clear removes the tokens and the cached profile together.
func (t *TokenStore) Clear(ctx context.Context) error {
	return t.store.Remove(ctx, constants.KeyAccessToken, constants.KeyRefreshToken, constants.KeyUserProfile)
}
