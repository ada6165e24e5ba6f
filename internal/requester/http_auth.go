package requester

import (
	"fmt"
	"net/http"

	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/storage"
)

// AuthManager handles request authentication
type AuthManager interface {
	ApplyAuth(req *http.Request) error
}

// TokenAuthManager attaches the stored access token as a bearer header
type TokenAuthManager struct {
	tokens *storage.TokenStore
}

// NewTokenAuthManager creates a new TokenAuthManager
func NewTokenAuthManager(tokens *storage.TokenStore) *TokenAuthManager {
	return &TokenAuthManager{tokens: tokens}
}

// ApplyAuth adds the bearer header when an access token is stored
func (a *TokenAuthManager) ApplyAuth(req *http.Request) error {
	token, err := a.tokens.AccessToken(req.Context())
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	if token != "" {
		req.Header.Set(constants.AuthHeaderName, constants.AuthHeaderPrefix+token)
	}
	return nil
}
