package flow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brizzai/tutor-auth/internal/auth/autherr"
	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/auth/models"
	"github.com/brizzai/tutor-auth/internal/auth/providers"
	"github.com/brizzai/tutor-auth/internal/auth/session"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/brizzai/tutor-auth/internal/requester"
	"github.com/brizzai/tutor-auth/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/oauth2"
)

// backend is a fake of the four auth endpoints.
type backend struct {
	mu sync.Mutex

	exchangeStatus int
	exchangeRaw    string
	exchangeResp   models.TokenResponse
	meStatus       int
	me             models.UserProfile
	logoutStatus   int

	lastExchange models.ExchangeRequest
	meAuth       []string
	logoutAuth   string

	exchangeCalls atomic.Int32
	meCalls       atomic.Int32
	logoutCalls   atomic.Int32
}

func newBackend() *backend {
	return &backend{
		exchangeStatus: http.StatusOK,
		exchangeResp: models.TokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			User:         &models.UserProfile{ID: "u1", Email: "parent@example.com", FirstName: "Pat"},
			IsNewUser:    true,
		},
		meStatus:     http.StatusOK,
		me:           models.UserProfile{ID: "u1", Email: "parent@example.com", FirstName: "Patricia"},
		logoutStatus: http.StatusNoContent,
	}
}

func (b *backend) set(fn func(*backend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *backend) exchange() models.ExchangeRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastExchange
}

func (b *backend) meHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.meAuth...)
}

func (b *backend) logoutHeader() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logoutAuth
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(constants.PathGoogleCallback, func(w http.ResponseWriter, r *http.Request) {
		b.exchangeCalls.Add(1)
		b.mu.Lock()
		defer b.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&b.lastExchange)
		w.WriteHeader(b.exchangeStatus)
		if b.exchangeRaw != "" {
			_, _ = w.Write([]byte(b.exchangeRaw))
			return
		}
		if b.exchangeStatus == http.StatusOK {
			_ = json.NewEncoder(w).Encode(b.exchangeResp)
		}
	})
	mux.HandleFunc(constants.PathMe, func(w http.ResponseWriter, r *http.Request) {
		b.meCalls.Add(1)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.meAuth = append(b.meAuth, r.Header.Get(constants.AuthHeaderName))
		w.WriteHeader(b.meStatus)
		if b.meStatus == http.StatusOK {
			_ = json.NewEncoder(w).Encode(b.me)
		}
	})
	mux.HandleFunc(constants.PathRefresh, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc(constants.PathLogout, func(w http.ResponseWriter, r *http.Request) {
		b.logoutCalls.Add(1)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.logoutAuth = r.Header.Get(constants.AuthHeaderName)
		w.WriteHeader(b.logoutStatus)
	})
	return mux
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *recordingNotifier) Alert(title, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
}

func (n *recordingNotifier) Titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.titles...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Track(_ context.Context, event string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type panickingSink struct{}

func (panickingSink) Track(context.Context, string, map[string]any) { panic("sink down") }

type recordingNavigator struct {
	urls []string
	err  error
}

func (n *recordingNavigator) Navigate(_ context.Context, u string) error {
	n.urls = append(n.urls, u)
	return n.err
}

type staticResolver string

func (s staticResolver) RedirectURI(context.Context) (string, error) { return string(s), nil }

type brokerFunc func(ctx context.Context, authURL, redirectURI string) (BrokerResult, error)

func (f brokerFunc) Open(ctx context.Context, authURL, redirectURI string) (BrokerResult, error) {
	return f(ctx, authURL, redirectURI)
}

// approvingBroker plays a provider that immediately redirects back with code.
func approvingBroker(code string) brokerFunc {
	return func(_ context.Context, authURL, redirectURI string) (BrokerResult, error) {
		u, err := url.Parse(authURL)
		if err != nil {
			return BrokerResult{}, err
		}
		back := redirectURI + "?" + url.Values{
			constants.ParamCode:  {code},
			constants.ParamState: {u.Query().Get(constants.ParamState)},
		}.Encode()
		return BrokerResult{Type: BrokerSuccess, URL: back}, nil
	}
}

type harness struct {
	ctrl     *Controller
	backend  *backend
	store    *storage.MemoryStore
	tokens   *storage.TokenStore
	session  *session.Store
	notifier *recordingNotifier
	sink     *recordingSink
}

func newHarness(t *testing.T, strategy RedirectStrategy, mutate func(*config.Config)) *harness {
	t.Helper()
	b := newBackend()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		API: config.APIConfig{BaseURL: srv.URL, Timeout: 5 * time.Second},
		OAuth: config.OAuthConfig{
			WebClientID:    "web-client",
			NativeClientID: "native-client",
			Scopes:         constants.DefaultScopes,
			CallbackPath:   "/oauth/google/callback",
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	provider, err := providers.NewGoogleProvider(context.Background(), &cfg.OAuth)
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	tokens := storage.NewTokenStore(store)
	req := requester.NewHTTPRequester(requester.HTTPRequesterParams{
		Config:      cfg,
		Builder:     requester.NewHTTPRequestBuilder(cfg),
		AuthManager: requester.NewTokenAuthManager(tokens),
		Tokens:      tokens,
	})
	sess := session.NewStore()
	notifier := &recordingNotifier{}
	sink := &recordingSink{}

	if strategy == nil {
		strategy = NewInProcessBrokerStrategy(staticResolver("http://127.0.0.1:8765/oauth/callback"), approvingBroker("code-1"))
	}

	ctrl := NewController(ControllerParams{
		Config:    cfg,
		Provider:  provider,
		Strategy:  strategy,
		Requester: req,
		Tokens:    tokens,
		Session:   sess,
		Notifier:  notifier,
		Sink:      sink,
	})
	return &harness{ctrl: ctrl, backend: b, store: store, tokens: tokens, session: sess, notifier: notifier, sink: sink}
}

func (h *harness) seed(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, h.tokens.SaveCredentials(context.Background(),
		models.Credentials{AccessToken: access, RefreshToken: refresh}))
}

func TestProcessAuthResult_Success(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	var published []session.State
	h.session.Subscribe(func(st session.State) { published = append(published, st) })

	result, err := h.ctrl.ProcessAuthResult(ctx, "code-1", "verifier-1", "http://localhost:3000/oauth/google/callback")
	require.NoError(t, err)
	assert.True(t, result.Authenticated)
	assert.True(t, result.IsNewUser)
	assert.Equal(t, "Patricia", result.User.FirstName)

	assert.Equal(t, models.ExchangeRequest{
		Code:         "code-1",
		CodeVerifier: "verifier-1",
		RedirectURI:  "http://localhost:3000/oauth/google/callback",
	}, h.backend.exchange())

	// the verification call carries exactly the token the exchange returned
	require.Len(t, h.backend.meHeaders(), 1)
	assert.Equal(t, "Bearer access-1", h.backend.meHeaders()[0])

	creds, err := h.tokens.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"}, creds)

	cached, err := h.tokens.CachedProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Patricia", cached.FirstName)

	st := h.session.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	assert.Equal(t, StateAuthenticated, h.ctrl.FlowState())

	require.Len(t, published, 1)
	assert.True(t, published[0].IsAuthenticated)
	assert.Equal(t, []string{constants.EventLoginSuccess}, h.sink.Events())
	assert.Empty(t, h.notifier.Titles())
}

func TestProcessAuthResult_ReplacesWholeCredentialPair(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	h.seed(t, "access-of-a", "refresh-of-a")
	h.backend.set(func(b *backend) {
		b.exchangeResp = models.TokenResponse{AccessToken: "access-1"}
	})

	result, err := h.ctrl.ProcessAuthResult(ctx, "code-1", "verifier-1", "http://localhost:3000/oauth/google/callback")
	require.NoError(t, err)
	assert.True(t, result.Authenticated)

	creds, err := h.tokens.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.Credentials{AccessToken: "access-1"}, creds)

	refresh, err := h.tokens.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, refresh)
}

func TestProcessAuthResult_VerificationFailureLogsOut(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusUnauthorized} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			h := newHarness(t, nil, nil)
			h.backend.set(func(b *backend) { b.meStatus = status })

			var sawAuthenticated bool
			h.session.Subscribe(func(st session.State) {
				if st.IsAuthenticated {
					sawAuthenticated = true
				}
			})

			result, err := h.ctrl.ProcessAuthResult(context.Background(), "code-1", "v", "http://localhost/cb")
			assert.Nil(t, result)
			var verr *autherr.VerificationError
			require.ErrorAs(t, err, &verr)

			assert.Equal(t, 0, h.store.Len())
			st := h.session.Snapshot()
			assert.False(t, st.IsAuthenticated)
			assert.False(t, st.IsLoading)
			assert.False(t, sawAuthenticated)
			assert.Equal(t, StateFailed, h.ctrl.FlowState())
			assert.Equal(t, []string{alertAccountMissing}, h.notifier.Titles())
		})
	}
}

func TestProcessAuthResult_ExchangeRejected(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.backend.set(func(b *backend) { b.exchangeStatus = http.StatusBadRequest })
	h.backend.set(func(b *backend) { b.exchangeRaw = `{"detail":"invalid_grant"}` })

	_, err := h.ctrl.ProcessAuthResult(context.Background(), "code-1", "v", "http://localhost/cb")
	assert.True(t, autherr.IsStatus(err, http.StatusBadRequest))
	assert.Zero(t, h.backend.meCalls.Load())
	assert.Equal(t, 0, h.store.Len())
	assert.False(t, h.session.Snapshot().IsLoading)
	assert.Equal(t, []string{alertSignInFailed}, h.notifier.Titles())
	assert.Equal(t, []string{constants.EventLoginFailure}, h.sink.Events())
}

func TestProcessAuthResult_ExchangeRejectedDoesNotAdoptStoredCredentials(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.seed(t, "old-access", "old-refresh")
	h.backend.set(func(b *backend) { b.exchangeStatus = http.StatusBadRequest })

	_, err := h.ctrl.ProcessAuthResult(context.Background(), "code-1", "v", "http://localhost/cb")
	require.Error(t, err)
	assert.Zero(t, h.backend.meCalls.Load())
}

func TestProcessAuthResult_FallbackToStoredCredentials(t *testing.T) {
	t.Run("adopts and verifies stored credentials", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.seed(t, "landed-access", "landed-refresh")
		h.backend.set(func(b *backend) { b.exchangeRaw = "{truncated" })

		result, err := h.ctrl.ProcessAuthResult(context.Background(), "code-1", "v", "http://localhost/cb")
		require.NoError(t, err)
		assert.True(t, result.Authenticated)
		assert.False(t, result.IsNewUser)
		assert.Equal(t, []string{"Bearer landed-access"}, h.backend.meHeaders())
		assert.True(t, h.session.Snapshot().IsAuthenticated)
	})

	t.Run("fails without stored credentials", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.backend.set(func(b *backend) { b.exchangeRaw = "{truncated" })

		_, err := h.ctrl.ProcessAuthResult(context.Background(), "code-1", "v", "http://localhost/cb")
		var malformed *autherr.MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.Zero(t, h.backend.meCalls.Load())
		assert.False(t, h.session.Snapshot().IsAuthenticated)
	})
}

func TestProcessAuthResult_SinkPanicDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.sink = panickingSink{}

	result, err := h.ctrl.ProcessAuthResult(context.Background(), "code-1", "v", "http://localhost/cb")
	require.NoError(t, err)
	assert.True(t, result.Authenticated)
}

func TestBootstrap(t *testing.T) {
	t.Run("no token resolves without network", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		st := h.ctrl.Bootstrap(context.Background())
		assert.False(t, st.IsLoading)
		assert.False(t, st.IsAuthenticated)
		assert.Zero(t, h.backend.meCalls.Load())
	})

	t.Run("valid token is verified", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.seed(t, "access-1", "refresh-1")
		require.NoError(t, h.tokens.SaveProfile(context.Background(), &models.UserProfile{ID: "u1", FirstName: "Stale"}))

		st := h.ctrl.Bootstrap(context.Background())
		assert.True(t, st.IsAuthenticated)
		assert.Equal(t, "Patricia", st.User.FirstName)
		assert.EqualValues(t, 1, h.backend.meCalls.Load())

		cached, err := h.tokens.CachedProfile(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Patricia", cached.FirstName)
	})

	t.Run("invalid token clears storage", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.seed(t, "expired", "revoked")
		h.backend.set(func(b *backend) { b.meStatus = http.StatusUnauthorized })

		st := h.ctrl.Bootstrap(context.Background())
		assert.False(t, st.IsAuthenticated)
		assert.False(t, st.IsLoading)
		assert.Equal(t, 0, h.store.Len())
	})

	t.Run("server error clears storage", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.seed(t, "access-1", "refresh-1")
		h.backend.set(func(b *backend) { b.meStatus = http.StatusInternalServerError })

		st := h.ctrl.Bootstrap(context.Background())
		assert.False(t, st.IsAuthenticated)
		assert.Equal(t, 0, h.store.Len())
	})
}

func TestLogin_PageRedirect(t *testing.T) {
	pending := storage.NewPendingStore(storage.NewMemoryStore())
	nav := &recordingNavigator{}
	strategy := NewPageRedirectStrategy("http://localhost:3000/", "/oauth/google/callback", pending, nav)
	h := newHarness(t, strategy, nil)

	result, err := h.ctrl.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.False(t, result.Authenticated)
	assert.Equal(t, StateAwaitingProviderRedirect, h.ctrl.FlowState())

	require.Len(t, nav.urls, 1)
	u, err := url.Parse(nav.urls[0])
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "web-client", q.Get("client_id"))
	assert.Equal(t, "http://localhost:3000/oauth/google/callback", q.Get("redirect_uri"))

	p, err := pending.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "http://localhost:3000/oauth/google/callback", p.RedirectURI)
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(p.CodeVerifier), q.Get("code_challenge"))
	assert.Equal(t, q.Get("state"), p.State)
	assert.Zero(t, h.backend.exchangeCalls.Load())
}

func TestLogin_PageRedirectNavigationFailureDropsPending(t *testing.T) {
	pending := storage.NewPendingStore(storage.NewMemoryStore())
	nav := &recordingNavigator{err: errors.New("blocked")}
	h := newHarness(t, NewPageRedirectStrategy("http://localhost:3000", "/cb", pending, nav), nil)

	_, err := h.ctrl.Login(context.Background())
	require.Error(t, err)

	p, err := pending.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLogin_NativeBroker(t *testing.T) {
	var openedRedirect string
	var challenge string
	broker := brokerFunc(func(ctx context.Context, authURL, redirectURI string) (BrokerResult, error) {
		openedRedirect = redirectURI
		u, _ := url.Parse(authURL)
		challenge = u.Query().Get("code_challenge")
		return approvingBroker("native-code")(ctx, authURL, redirectURI)
	})
	strategy := NewInProcessBrokerStrategy(staticResolver("com.tutor.app:/oauthredirect"), broker)
	h := newHarness(t, strategy, nil)

	result, err := h.ctrl.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Authenticated)
	assert.False(t, result.Pending)

	assert.Equal(t, "com.tutor.app:/oauthredirect", openedRedirect)
	assert.Equal(t, "native-code", h.backend.exchange().Code)
	assert.Equal(t, "com.tutor.app:/oauthredirect", h.backend.exchange().RedirectURI)
	assert.Equal(t, challenge, oauth2.S256ChallengeFromVerifier(h.backend.exchange().CodeVerifier))
	assert.Equal(t, []string{constants.EventLoginAttempt, constants.EventLoginSuccess}, h.sink.Events())
}

func TestLogin_BrokerOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		result     BrokerResult
		wantErr    func(t *testing.T, err error)
		wantAlerts int
	}{
		{
			name:   "cancel",
			result: BrokerResult{Type: BrokerCancel},
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrLoginCancelled)
			},
		},
		{
			name:   "dismiss",
			result: BrokerResult{Type: BrokerDismiss},
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrLoginCancelled)
			},
		},
		{
			name:   "provider error",
			result: BrokerResult{Type: BrokerSuccess, URL: "http://127.0.0.1/oauth/callback?error=access_denied&error_description=nope"},
			wantErr: func(t *testing.T, err error) {
				var perr *autherr.ProviderError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, "access_denied", perr.Code)
				assert.Equal(t, "nope", perr.Description)
			},
			wantAlerts: 1,
		},
		{
			name:   "missing code",
			result: BrokerResult{Type: BrokerSuccess, URL: "http://127.0.0.1/oauth/callback"},
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrMissingCode)
			},
			wantAlerts: 1,
		},
		{
			name:   "state mismatch",
			result: BrokerResult{Type: BrokerSuccess, URL: "http://127.0.0.1/oauth/callback?code=c&state=forged"},
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrStateMismatch)
			},
			wantAlerts: 1,
		},
		{
			name:   "state dropped",
			result: BrokerResult{Type: BrokerSuccess, URL: "http://127.0.0.1/oauth/callback?code=c"},
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrStateMismatch)
			},
			wantAlerts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := brokerFunc(func(context.Context, string, string) (BrokerResult, error) {
				return tt.result, nil
			})
			h := newHarness(t, NewInProcessBrokerStrategy(staticResolver("http://127.0.0.1/oauth/callback"), broker), nil)

			result, err := h.ctrl.Login(context.Background())
			assert.Nil(t, result)
			tt.wantErr(t, err)
			assert.Zero(t, h.backend.exchangeCalls.Load())
			assert.Len(t, h.notifier.Titles(), tt.wantAlerts)
			assert.False(t, h.session.Snapshot().IsAuthenticated)
		})
	}
}

func TestLogin_ConfigurationError(t *testing.T) {
	var opened atomic.Bool
	broker := brokerFunc(func(context.Context, string, string) (BrokerResult, error) {
		opened.Store(true)
		return BrokerResult{Type: BrokerCancel}, nil
	})
	h := newHarness(t, NewInProcessBrokerStrategy(staticResolver("x:/cb"), broker), func(cfg *config.Config) {
		cfg.OAuth.NativeClientID = ""
	})

	_, err := h.ctrl.Login(context.Background())
	var cerr *autherr.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, string(config.RuntimeNative), cerr.Runtime)
	assert.False(t, opened.Load())
	assert.Equal(t, StateFailed, h.ctrl.FlowState())
	assert.Len(t, h.notifier.Titles(), 1)
}

func TestLogin_RejectsConcurrentAttempt(t *testing.T) {
	opened := make(chan struct{})
	broker := brokerFunc(func(ctx context.Context, _, _ string) (BrokerResult, error) {
		close(opened)
		<-ctx.Done()
		return BrokerResult{Type: BrokerDismiss}, nil
	})
	h := newHarness(t, NewInProcessBrokerStrategy(staticResolver("http://127.0.0.1/cb"), broker), nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Login(ctx)
		firstErr <- err
	}()

	<-opened
	_, err := h.ctrl.Login(context.Background())
	assert.ErrorIs(t, err, ErrLoginInProgress)

	cancel()
	assert.ErrorIs(t, <-firstErr, ErrLoginCancelled)

	// the guard is released once the first attempt finishes
	h.ctrl.strategy = NewInProcessBrokerStrategy(staticResolver("http://127.0.0.1/cb"), approvingBroker("c"))
	result, err := h.ctrl.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Authenticated)
}

func TestLogout(t *testing.T) {
	t.Run("server failure still clears local state", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		_, err := h.ctrl.ProcessAuthResult(context.Background(), "c", "v", "http://localhost/cb")
		require.NoError(t, err)
		h.backend.set(func(b *backend) { b.logoutStatus = http.StatusInternalServerError })

		require.NoError(t, h.ctrl.Logout(context.Background()))
		assert.EqualValues(t, 1, h.backend.logoutCalls.Load())
		assert.Equal(t, "Bearer access-1", h.backend.logoutHeader())
		assert.Equal(t, 0, h.store.Len())
		assert.False(t, h.session.Snapshot().IsAuthenticated)
		assert.Equal(t, StateIdle, h.ctrl.FlowState())
	})

	t.Run("expired server session is not a failure", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		logger.SetLogger(zap.New(core))
		t.Cleanup(func() { logger.SetLogger(nil) })

		h := newHarness(t, nil, nil)
		_, err := h.ctrl.ProcessAuthResult(context.Background(), "c", "v", "http://localhost/cb")
		require.NoError(t, err)
		h.backend.set(func(b *backend) { b.logoutStatus = http.StatusUnauthorized })

		require.NoError(t, h.ctrl.Logout(context.Background()))
		assert.EqualValues(t, 1, h.backend.logoutCalls.Load())
		assert.Equal(t, 0, h.store.Len())
		assert.Equal(t, 1, logs.FilterMessage("server session already expired").Len())
		assert.Zero(t, logs.FilterLevelExact(zap.WarnLevel).Len())
	})

	t.Run("no token skips server call", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		require.NoError(t, h.ctrl.Logout(context.Background()))
		assert.Zero(t, h.backend.logoutCalls.Load())
		assert.Contains(t, h.sink.Events(), constants.EventLogout)
	})
}
