package flow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/brizzai/tutor-auth/internal/auth/autherr"
	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/auth/models"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/brizzai/tutor-auth/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrNavigatedAway means control left the process; the result arrives at the callback route.
	ErrNavigatedAway = errors.New("navigated away to identity provider")
	// ErrLoginCancelled means the user closed or dismissed the in-app browser.
	ErrLoginCancelled = errors.New("login cancelled")
	// ErrMissingCode is a provider redirect that carries neither a code nor an error.
	ErrMissingCode = errors.New("authorization code missing from redirect")
	// ErrStateMismatch is a redirect whose state does not match the request.
	ErrStateMismatch = errors.New("authorization state mismatch")
	// ErrNoStrategy is returned by SelectStrategy when the host offers neither mechanism.
	ErrNoStrategy = errors.New("no redirect mechanism available")
)

// RedirectStrategy hides how the user reaches the identity provider and how control comes back.
type RedirectStrategy interface {
	Runtime() config.Runtime
	RedirectURI(ctx context.Context) (string, error)
	// Dispatch sends the user to req.URL. It returns the provider response when
	// control comes back in-process, or ErrNavigatedAway when it never will.
	Dispatch(ctx context.Context, req *models.AuthorizationRequest) (*models.AuthorizationResponse, error)
}

// Navigator replaces the current page with url.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// RedirectResolver produces a redirect URI the platform can call back.
type RedirectResolver interface {
	RedirectURI(ctx context.Context) (string, error)
}

type BrokerResultType string

const (
	BrokerSuccess BrokerResultType = "success"
	BrokerCancel  BrokerResultType = "cancel"
	BrokerDismiss BrokerResultType = "dismiss"
)

// BrokerResult is what the in-app browser returns. URL is set on success.
type BrokerResult struct {
	Type BrokerResultType
	URL  string
}

// Broker opens the authorization URL without the app losing its execution context.
type Broker interface {
	Open(ctx context.Context, authURL, redirectURI string) (BrokerResult, error)
}

// PageRedirectStrategy persists the PKCE secrets and navigates the whole page away.
type PageRedirectStrategy struct {
	origin       string
	callbackPath string
	pending      storage.PendingStorage
	navigator    Navigator
}

func NewPageRedirectStrategy(origin, callbackPath string, pending storage.PendingStorage, navigator Navigator) *PageRedirectStrategy {
	return &PageRedirectStrategy{
		origin:       strings.TrimRight(origin, "/"),
		callbackPath: callbackPath,
		pending:      pending,
		navigator:    navigator,
	}
}

func (s *PageRedirectStrategy) Runtime() config.Runtime { return config.RuntimeBrowser }

func (s *PageRedirectStrategy) RedirectURI(context.Context) (string, error) {
	if s.origin == "" {
		return "", errors.New("browser origin is not configured")
	}
	return s.origin + s.callbackPath, nil
}

func (s *PageRedirectStrategy) Dispatch(ctx context.Context, req *models.AuthorizationRequest) (*models.AuthorizationResponse, error) {
	err := s.pending.Save(ctx, models.PendingAuthorization{
		CodeVerifier: req.CodeVerifier,
		RedirectURI:  req.RedirectURI,
		State:        req.State,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist pending authorization: %w", err)
	}

	if err := s.navigator.Navigate(ctx, req.URL); err != nil {
		if delErr := s.pending.Delete(ctx); delErr != nil {
			logger.Warn("failed to delete pending authorization", zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to navigate to identity provider: %w", err)
	}
	return nil, ErrNavigatedAway
}

// InProcessBrokerStrategy hands the URL to a platform broker and waits for its result.
type InProcessBrokerStrategy struct {
	resolver RedirectResolver
	broker   Broker
}

func NewInProcessBrokerStrategy(resolver RedirectResolver, broker Broker) *InProcessBrokerStrategy {
	return &InProcessBrokerStrategy{resolver: resolver, broker: broker}
}

func (s *InProcessBrokerStrategy) Runtime() config.Runtime { return config.RuntimeNative }

func (s *InProcessBrokerStrategy) RedirectURI(ctx context.Context) (string, error) {
	return s.resolver.RedirectURI(ctx)
}

func (s *InProcessBrokerStrategy) Dispatch(ctx context.Context, req *models.AuthorizationRequest) (*models.AuthorizationResponse, error) {
	result, err := s.broker.Open(ctx, req.URL, req.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("browser session failed: %w", err)
	}

	switch result.Type {
	case BrokerSuccess:
		return ParseRedirect(result.URL)
	case BrokerCancel, BrokerDismiss:
		return nil, ErrLoginCancelled
	default:
		return nil, fmt.Errorf("unexpected browser result %q", result.Type)
	}
}

// ParseRedirect extracts the authorization response from a provider redirect URL.
func ParseRedirect(raw string) (*models.AuthorizationResponse, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect url: %w", err)
	}
	q := u.Query()
	if code := q.Get(constants.ParamError); code != "" {
		return nil, &autherr.ProviderError{Code: code, Description: q.Get(constants.ParamErrorDescription)}
	}
	code := q.Get(constants.ParamCode)
	if code == "" {
		return nil, ErrMissingCode
	}
	return &models.AuthorizationResponse{Code: code, State: q.Get(constants.ParamState)}, nil
}

// Capabilities is what the host reports about itself at startup.
type Capabilities struct {
	// Page redirect
	Navigator    Navigator
	Pending      storage.PendingStorage
	Origin       string
	CallbackPath string

	// In-process broker
	Resolver RedirectResolver
	Broker   Broker
}

// SelectStrategy picks the redirect strategy once, preferring the in-process
// broker when the host has one.
func SelectStrategy(caps Capabilities) (RedirectStrategy, error) {
	switch {
	case caps.Broker != nil && caps.Resolver != nil:
		return NewInProcessBrokerStrategy(caps.Resolver, caps.Broker), nil
	case caps.Navigator != nil && caps.Pending != nil && caps.Origin != "":
		return NewPageRedirectStrategy(caps.Origin, caps.CallbackPath, caps.Pending, caps.Navigator), nil
	default:
		return nil, ErrNoStrategy
	}
}
