package providers

import (
	"github.com/brizzai/tutor-auth/internal/auth/models"
)

// Provider defines what the login flow needs from an identity provider
type Provider interface {
	// AuthorizationRequest builds a PKCE-bound authorization URL for the client and redirect URI
	AuthorizationRequest(clientID, redirectURI string) (*models.AuthorizationRequest, error)
}
