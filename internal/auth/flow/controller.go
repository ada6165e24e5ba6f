// Package flow drives the Google authorization-code-with-PKCE login and owns
// every transition of the session state that follows from it.
package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/brizzai/tutor-auth/internal/auth/autherr"
	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/auth/models"
	"github.com/brizzai/tutor-auth/internal/auth/providers"
	"github.com/brizzai/tutor-auth/internal/auth/session"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/brizzai/tutor-auth/internal/requester"
	"github.com/brizzai/tutor-auth/internal/storage"
	"github.com/brizzai/tutor-auth/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrLoginInProgress rejects a Login while another one is still running.
var ErrLoginInProgress = errors.New("login already in progress")

// Notifier shows a message the user has to see.
type Notifier interface {
	Alert(title, message string)
}

// NopNotifier discards alerts.
type NopNotifier struct{}

func (NopNotifier) Alert(string, string) {}

const (
	alertSignInFailed    = "Sign-in failed"
	alertAccountMissing  = "Account could not be created"
	alertAccountMessage  = "We could not set up your account. Please try signing in again."
	alertConfigMessage   = "Sign-in is not available on this device."
	alertGenericFailure  = "Something went wrong while signing you in. Please try again."
	failureReasonCancel  = "cancelled"
	failureReasonConfig  = "configuration"
	failureReasonVerify  = "verification"
	failureReasonGeneric = "error"
)

type Controller struct {
	oauth     *config.OAuthConfig
	provider  providers.Provider
	strategy  RedirectStrategy
	requester *requester.HTTPRequester
	tokens    *storage.TokenStore
	session   session.Publisher
	notifier  Notifier
	sink      telemetry.Sink

	loginInFlight atomic.Bool
	state         atomic.Int32
}

type ControllerParams struct {
	fx.In

	Config    *config.Config
	Provider  providers.Provider
	Strategy  RedirectStrategy
	Requester *requester.HTTPRequester
	Tokens    *storage.TokenStore
	Session   session.Publisher
	Notifier  Notifier       `optional:"true"`
	Sink      telemetry.Sink `optional:"true"`
}

func NewController(p ControllerParams) *Controller {
	c := &Controller{
		oauth:     &p.Config.OAuth,
		provider:  p.Provider,
		strategy:  p.Strategy,
		requester: p.Requester,
		tokens:    p.Tokens,
		session:   p.Session,
		notifier:  p.Notifier,
		sink:      p.Sink,
	}
	if c.notifier == nil {
		c.notifier = NopNotifier{}
	}
	if c.sink == nil {
		c.sink = telemetry.NopSink{}
	}
	return c
}

// FlowState reports where the current or last login attempt is.
func (c *Controller) FlowState() FlowState {
	return FlowState(c.state.Load())
}

// Runtime is the runtime of the selected redirect strategy.
func (c *Controller) Runtime() config.Runtime {
	return c.strategy.Runtime()
}

func (c *Controller) setState(s FlowState) {
	prev := FlowState(c.state.Swap(int32(s)))
	if prev != s {
		logger.Debug("login flow transition", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Login starts an authorization. In the browser runtime it returns
// LoginResult{Pending: true} once the page has been sent away; in the native
// runtime it blocks until the broker returns and the code has been redeemed.
func (c *Controller) Login(ctx context.Context) (*models.LoginResult, error) {
	if !c.loginInFlight.CompareAndSwap(false, true) {
		return nil, ErrLoginInProgress
	}
	defer c.loginInFlight.Store(false)

	runtime := c.strategy.Runtime()
	c.setState(StateRequesting)
	telemetry.SafeTrack(ctx, c.sink, constants.EventLoginAttempt, map[string]any{"runtime": string(runtime)})

	clientID, err := c.oauth.ClientIDFor(runtime)
	if err != nil {
		return nil, c.fail(ctx, err, failureReasonConfig, alertConfigMessage)
	}

	redirectURI, err := c.strategy.RedirectURI(ctx)
	if err != nil {
		return nil, c.fail(ctx, fmt.Errorf("failed to resolve redirect uri: %w", err), failureReasonGeneric, alertGenericFailure)
	}

	req, err := c.provider.AuthorizationRequest(clientID, redirectURI)
	if err != nil {
		return nil, c.fail(ctx, fmt.Errorf("failed to build authorization request: %w", err), failureReasonGeneric, alertGenericFailure)
	}

	c.setState(StateAwaitingProviderRedirect)
	logger.Info("dispatching authorization request",
		zap.String("runtime", string(runtime)),
		zap.String("redirect_uri", redirectURI))

	resp, err := c.strategy.Dispatch(ctx, req)
	switch {
	case errors.Is(err, ErrNavigatedAway):
		return &models.LoginResult{Pending: true}, nil
	case errors.Is(err, ErrLoginCancelled), errors.Is(err, context.Canceled):
		c.setState(StateIdle)
		telemetry.SafeTrack(ctx, c.sink, constants.EventLoginFailure, map[string]any{"reason": failureReasonCancel})
		c.settleLoggedOut()
		return nil, ErrLoginCancelled
	case err != nil:
		return nil, c.fail(ctx, err, failureReasonGeneric, alertGenericFailure)
	}

	if req.State != "" && resp.State != req.State {
		return nil, c.fail(ctx, ErrStateMismatch, failureReasonGeneric, alertGenericFailure)
	}

	return c.ProcessAuthResult(ctx, resp.Code, req.CodeVerifier, req.RedirectURI)
}

// ProcessAuthResult redeems an authorization code and verifies the account
// against the server before the session is published as authenticated.
func (c *Controller) ProcessAuthResult(ctx context.Context, code, codeVerifier, redirectURI string) (*models.LoginResult, error) {
	c.setState(StateExchanging)

	tokenResp, err := requester.Request[models.TokenResponse](ctx, c.requester, constants.PathGoogleCallback, requester.RequestOptions{
		Method: http.MethodPost,
		Body: models.ExchangeRequest{
			Code:         code,
			CodeVerifier: codeVerifier,
			RedirectURI:  redirectURI,
		},
		SkipAuth: true,
	})

	var apiErr *autherr.APIError
	isNewUser := false
	switch {
	case err == nil && tokenResp != nil && tokenResp.AccessToken != "":
		if err := c.persistExchange(ctx, tokenResp); err != nil {
			c.clearLocal(ctx)
			return nil, c.fail(ctx, err, failureReasonGeneric, alertGenericFailure)
		}
		isNewUser = tokenResp.IsNewUser
	case errors.As(err, &apiErr):
		logger.Error("token exchange rejected",
			zap.Int("status", apiErr.Status),
			zap.String("message", apiErr.Message),
			zap.Any("body", apiErr.Body))
		return nil, c.fail(ctx, err, failureReasonGeneric, alertGenericFailure)
	default:
		if err == nil {
			err = &autherr.MalformedResponseError{URL: constants.PathGoogleCallback, Err: errors.New("token response without access_token")}
		}
		creds, credErr := c.tokens.Credentials(ctx)
		if credErr != nil || creds == nil {
			logger.Error("token exchange failed", zap.Error(err))
			return nil, c.fail(ctx, err, failureReasonGeneric, alertGenericFailure)
		}
		logger.Warn("token exchange failed but credentials are stored, verifying them", zap.Error(err))
	}

	// Tokens are stored but the session stays unpublished until the server
	// confirms the account exists.
	c.setState(StateVerifying)
	user, err := requester.Request[models.UserProfile](ctx, c.requester, constants.PathMe, requester.RequestOptions{})
	if err == nil && user == nil {
		err = errors.New("empty profile response")
	}
	if err != nil {
		logger.Error("account verification failed, logging out", zap.Error(err))
		c.clearLocal(ctx)
		return nil, c.fail(ctx, &autherr.VerificationError{Err: err}, failureReasonVerify, alertAccountMessage)
	}

	if err := c.tokens.SaveProfile(ctx, user); err != nil {
		logger.Warn("failed to cache verified profile", zap.Error(err))
	}

	c.session.Publish(session.Authenticated(user))
	c.setState(StateAuthenticated)
	telemetry.SafeTrack(ctx, c.sink, constants.EventLoginSuccess, map[string]any{
		"user_id":     user.ID,
		"is_new_user": isNewUser,
	})
	logger.Info("login complete", zap.String("user_id", user.ID), zap.Bool("is_new_user", isNewUser))

	return &models.LoginResult{Authenticated: true, IsNewUser: isNewUser, User: user}, nil
}

// Logout invalidates the session server-side on a best-effort basis and
// always clears the local credentials.
func (c *Controller) Logout(ctx context.Context) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		logger.Warn("failed to read access token for logout", zap.Error(err))
	}
	if token != "" {
		_, err := c.requester.Do(ctx, constants.PathLogout, requester.RequestOptions{
			Method:    http.MethodPost,
			NoRefresh: true,
		})
		switch {
		case err == nil:
		case autherr.IsStatus(err, http.StatusUnauthorized):
			logger.Info("server session already expired", zap.Error(err))
		default:
			logger.Warn("server logout failed, clearing local session anyway", zap.Error(err))
		}
	}

	clearErr := c.tokens.Clear(ctx)
	c.session.Publish(session.LoggedOut())
	c.setState(StateIdle)
	telemetry.SafeTrack(ctx, c.sink, constants.EventLogout, nil)

	if clearErr != nil {
		return fmt.Errorf("failed to clear credentials: %w", clearErr)
	}
	return nil
}

// Bootstrap is the startup check. Any stored token is validated against the
// server; every failure is absorbed into the logged-out state.
func (c *Controller) Bootstrap(ctx context.Context) session.State {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		logger.Warn("failed to read stored session", zap.Error(err))
		c.clearLocal(ctx)
		c.session.Publish(session.LoggedOut())
		return c.session.Snapshot()
	}
	if token == "" {
		c.session.Publish(session.LoggedOut())
		return c.session.Snapshot()
	}

	user, err := requester.Request[models.UserProfile](ctx, c.requester, constants.PathMe, requester.RequestOptions{})
	if err == nil && user == nil {
		err = errors.New("empty profile response")
	}
	if err != nil {
		logger.Info("stored session is no longer valid", zap.Error(err))
		c.clearLocal(ctx)
		c.session.Publish(session.LoggedOut())
		return c.session.Snapshot()
	}

	if err := c.tokens.SaveProfile(ctx, user); err != nil {
		logger.Warn("failed to cache profile", zap.Error(err))
	}
	c.session.Publish(session.Authenticated(user))
	return c.session.Snapshot()
}

func (c *Controller) persistExchange(ctx context.Context, resp *models.TokenResponse) error {
	err := c.tokens.SaveCredentials(ctx, models.Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	})
	if err != nil {
		return err
	}
	return c.tokens.SaveProfile(ctx, resp.User)
}

func (c *Controller) fail(ctx context.Context, err error, reason, message string) error {
	c.setState(StateFailed)
	telemetry.SafeTrack(ctx, c.sink, constants.EventLoginFailure, map[string]any{
		"reason": reason,
		"error":  err.Error(),
	})

	title := alertSignInFailed
	if reason == failureReasonVerify {
		title = alertAccountMissing
	}
	c.notifier.Alert(title, message)
	c.settleLoggedOut()
	return err
}

// settleLoggedOut resolves a still-loading state to logged out and leaves a
// settled one alone.
func (c *Controller) settleLoggedOut() {
	if c.session.Snapshot().IsLoading {
		c.session.Publish(session.LoggedOut())
	}
}

func (c *Controller) clearLocal(ctx context.Context) {
	if err := c.tokens.Clear(ctx); err != nil {
		logger.Error("failed to clear credentials", zap.Error(err))
	}
	c.session.Publish(session.LoggedOut())
}
