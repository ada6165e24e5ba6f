package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brizzai/tutor-auth/internal/auth/autherr"
	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/auth/models"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/brizzai/tutor-auth/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxErrorMessageLen = 200

var errNoRefreshToken = errors.New("no refresh token stored")

// HTTPRequester sends authenticated requests to the backend and recovers from
// an expired access token with a single refresh and retry.
type HTTPRequester struct {
	client  *http.Client
	builder *HTTPRequestBuilder
	authMgr AuthManager
	tokens  *storage.TokenStore

	refreshTimeout time.Duration
	refreshGroup   singleflight.Group
}

type HTTPRequesterParams struct {
	fx.In

	Config      *config.Config
	Builder     *HTTPRequestBuilder
	AuthManager AuthManager
	Tokens      *storage.TokenStore
}

// NewHTTPRequester creates a new HTTPRequester using the configured API timeout
func NewHTTPRequester(params HTTPRequesterParams) *HTTPRequester {
	return &HTTPRequester{
		client: &http.Client{
			Timeout: params.Config.API.Timeout,
		},
		builder:        params.Builder,
		authMgr:        params.AuthManager,
		tokens:         params.Tokens,
		refreshTimeout: params.Config.API.Timeout,
	}
}

// SetClient replaces the underlying HTTP client
func (r *HTTPRequester) SetClient(client *http.Client) {
	r.client = client
}

// Do sends the request and returns the 2xx response.
//
// A 401 on an authenticated request triggers one refresh (shared by all
// concurrent callers) and one retry. When the refresh fails every stored
// credential is removed and the error wraps autherr.ErrAuthExpired.
func (r *HTTPRequester) Do(ctx context.Context, endpoint string, opts RequestOptions) (*Response, error) {
	resp, err := r.send(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !opts.SkipAuth && !opts.NoRefresh {
		logger.Info("access token rejected, refreshing", zap.String("endpoint", endpoint))
		if err := r.refresh(ctx); err != nil {
			// The caller gave up; the shared refresh may still succeed for others.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("token refresh interrupted: %w", ctxErr)
			}
			logger.Warn("token refresh failed, clearing credentials", zap.Error(err))
			if clearErr := r.tokens.Clear(ctx); clearErr != nil {
				logger.Error("failed to clear credentials", zap.Error(clearErr))
			}
			return nil, fmt.Errorf("%w: %v", autherr.ErrAuthExpired, err)
		}

		resp, err = r.send(ctx, endpoint, opts)
		if err != nil {
			return nil, err
		}
	}

	if !resp.OK() {
		return nil, newAPIError(resp)
	}
	return resp, nil
}

// Request performs the call and decodes the JSON body into T.
// An empty 2xx body yields (nil, nil).
func Request[T any](ctx context.Context, r *HTTPRequester, endpoint string, opts RequestOptions) (*T, error) {
	resp, err := r.Do(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, nil
	}

	var out T
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, &autherr.MalformedResponseError{URL: resp.URL, Err: err}
	}
	return &out, nil
}

// refresh runs at most one refresh at a time. The refresh itself is detached
// from the caller and bounded by the API timeout; each caller stops waiting
// when its own ctx is done.
func (r *HTTPRequester) refresh(ctx context.Context) error {
	ch := r.refreshGroup.DoChan("refresh", func() (any, error) {
		refreshCtx := context.WithoutCancel(ctx)
		if r.refreshTimeout > 0 {
			var cancel context.CancelFunc
			refreshCtx, cancel = context.WithTimeout(refreshCtx, r.refreshTimeout)
			defer cancel()
		}
		return nil, r.doRefresh(refreshCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			logger.Debug("joined in-flight token refresh")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *HTTPRequester) doRefresh(ctx context.Context) error {
	refreshToken, err := r.tokens.RefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to read refresh token: %w", err)
	}
	if refreshToken == "" {
		return errNoRefreshToken
	}

	resp, err := r.send(ctx, constants.PathRefresh, RequestOptions{
		Method:   http.MethodPost,
		Body:     models.RefreshRequest{RefreshToken: refreshToken},
		SkipAuth: true,
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return newAPIError(resp)
	}

	var out models.RefreshResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return &autherr.MalformedResponseError{URL: resp.URL, Err: err}
	}
	if out.AccessToken == "" {
		return &autherr.MalformedResponseError{URL: resp.URL, Err: errors.New("missing access_token")}
	}

	if err := r.tokens.SetAccessToken(ctx, out.AccessToken); err != nil {
		return fmt.Errorf("failed to store refreshed access token: %w", err)
	}
	if err := r.tokens.SaveProfile(ctx, out.User); err != nil {
		logger.Warn("failed to cache refreshed profile", zap.Error(err))
	}
	logger.Info("access token refreshed")
	return nil
}

func (r *HTTPRequester) send(ctx context.Context, endpoint string, opts RequestOptions) (*Response, error) {
	req, err := r.builder.BuildRequest(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	if !opts.SkipAuth {
		if err := r.authMgr.ApplyAuth(req); err != nil {
			return nil, err
		}
	}
	logger.Debug("request", zap.String("method", req.Method), zap.Stringer("url", req.URL))
	return r.execute(req)
}

// execute performs the actual HTTP request execution
func (r *HTTPRequester) execute(req *http.Request) (*Response, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &autherr.NetworkError{Op: req.Method, URL: req.URL.String(), Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &autherr.NetworkError{Op: req.Method, URL: req.URL.String(), Err: err}
	}

	return &Response{
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}

func newAPIError(resp *Response) *autherr.APIError {
	apiErr := &autherr.APIError{Status: resp.StatusCode}

	var decoded any
	if err := json.Unmarshal(resp.Body, &decoded); err == nil {
		apiErr.Body = decoded
		if obj, ok := decoded.(map[string]any); ok {
			for _, key := range []string{"detail", "message", "error_description", "error"} {
				if msg, ok := obj[key].(string); ok && msg != "" {
					apiErr.Message = msg
					return apiErr
				}
			}
		}
	}

	msg := strings.TrimSpace(string(resp.Body))
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	apiErr.Message = msg
	return apiErr
}
