package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/auth/models"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type GoogleProvider struct {
	endpoint oauth2.Endpoint
	scopes   []string
}

// NewGoogleProvider uses the static Google endpoint, or discovers it from
// oauth.issuer_url when one is configured.
func NewGoogleProvider(ctx context.Context, cfg *config.OAuthConfig) (*GoogleProvider, error) {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = constants.DefaultScopes
	}

	endpoint := google.Endpoint
	if cfg.IssuerURL != "" {
		provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
		}
		endpoint = provider.Endpoint()
		logger.Debug("discovered authorization endpoint",
			zap.String("issuer", cfg.IssuerURL),
			zap.String("auth_url", endpoint.AuthURL))
	}

	return &GoogleProvider{endpoint: endpoint, scopes: scopes}, nil
}

// AuthorizationRequest returns an S256 PKCE authorization URL requesting
// offline access with forced consent, so a refresh token is issued on every login.
func (p *GoogleProvider) AuthorizationRequest(clientID, redirectURI string) (*models.AuthorizationRequest, error) {
	if clientID == "" {
		return nil, errors.New("client id is required")
	}
	if redirectURI == "" {
		return nil, errors.New("redirect uri is required")
	}

	oauth2Cfg := &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    p.endpoint,
		RedirectURL: redirectURI,
		Scopes:      p.scopes,
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	authURL := oauth2Cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	return &models.AuthorizationRequest{
		URL:          authURL,
		CodeVerifier: verifier,
		RedirectURI:  redirectURI,
		State:        state,
	}, nil
}

// NewFromConfig builds the Google provider, bounding discovery by api.timeout.
func NewFromConfig(cfg *config.Config) (Provider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()
	return NewGoogleProvider(ctx, &cfg.OAuth)
}
