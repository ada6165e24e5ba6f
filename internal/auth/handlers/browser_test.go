package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brizzai/tutor-auth/internal/auth/callback"
	"github.com/brizzai/tutor-auth/internal/auth/flow"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		API:   config.APIConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		OAuth: config.OAuthConfig{WebClientID: "web-client", CallbackPath: "/oauth/google/callback"},
		Callback: config.CallbackConfig{
			LoginPath: "/login",
			HomePath:  "/",
		},
		Server: config.ServerConfig{Host: "localhost", Port: 3000},
	}
}

func TestSessionRegistry(t *testing.T) {
	reg := NewSessionRegistry(testConfig(), nil, telemetry.NopSink{})

	_, err := reg.Get("")
	assert.Error(t, err)

	a, err := reg.Get("a")
	require.NoError(t, err)
	again, err := reg.Get("a")
	require.NoError(t, err)
	b, err := reg.Get("b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, config.RuntimeBrowser, a.Controller.Runtime())
}

func TestSessionRegistry_ExpiresIdleSessions(t *testing.T) {
	reg := NewSessionRegistry(testConfig(), nil, nil)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }
	reg.ttl = time.Hour

	a, err := reg.Get("a")
	require.NoError(t, err)
	_, err = reg.Get("b")
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	_, err = reg.Get("a")
	require.NoError(t, err)

	// b has been idle for more than the ttl, a has not
	now = now.Add(30 * time.Minute)
	again, err := reg.Get("a")
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, 1, reg.Len())

	now = now.Add(2 * time.Hour)
	fresh, err := reg.Get("a")
	require.NoError(t, err)
	assert.NotSame(t, a, fresh)
	assert.Equal(t, 1, reg.Len())
}

func TestSessionRegistry_EvictsOldestBeyondCap(t *testing.T) {
	reg := NewSessionRegistry(testConfig(), nil, nil)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }
	reg.maxSessions = 2

	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Get(id)
		require.NoError(t, err)
		now = now.Add(time.Second)
	}
	assert.Equal(t, 2, reg.Len())

	reg.mu.Lock()
	_, hasA := reg.sessions["a"]
	_, hasC := reg.sessions["c"]
	reg.mu.Unlock()
	assert.False(t, hasA)
	assert.True(t, hasC)
}

func TestBrowserSessionFlash(t *testing.T) {
	reg := NewSessionRegistry(testConfig(), nil, nil)
	bs, err := reg.Get("a")
	require.NoError(t, err)

	bs.Alert("Sign-in failed", "Please try again.")
	assert.Equal(t, "Sign-in failed: Please try again.", bs.TakeFlash())
	assert.Empty(t, bs.TakeFlash())
}

func TestBrowserSessionBootstrapRunsOnce(t *testing.T) {
	reg := NewSessionRegistry(testConfig(), nil, nil)
	bs, err := reg.Get("a")
	require.NoError(t, err)

	assert.True(t, bs.State.Snapshot().IsLoading)
	bs.Bootstrap(context.Background())
	bs.Bootstrap(context.Background())
	assert.False(t, bs.State.Snapshot().IsLoading)
	assert.False(t, bs.State.Snapshot().IsAuthenticated)
}

func TestPageNavigator(t *testing.T) {
	var nav flow.Navigator = pageNavigator{}

	assert.Error(t, nav.Navigate(context.Background(), "https://accounts.google.com"))

	ctx, p := withPage(context.Background())
	require.NoError(t, nav.Navigate(ctx, "https://accounts.google.com"))
	assert.Equal(t, "https://accounts.google.com", p.Location())
}

func TestPageRecordsStatus(t *testing.T) {
	var (
		router    callback.Router
		presenter callback.Presenter
	)
	_, p := withPage(context.Background())
	router, presenter = p, p

	presenter.Show(callback.StatusError, "Sign-in failed")
	router.Replace("/login")

	status, msg := p.Status()
	assert.Equal(t, callback.StatusError, status)
	assert.Equal(t, "Sign-in failed", msg)
	assert.Equal(t, "/login", p.Location())
}

func TestRenderPageEscapes(t *testing.T) {
	rec := httptest.NewRecorder()
	renderPage(rec, pageData{Title: "Hi", Alert: "<script>x</script>", Logout: true})

	body := rec.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotContains(t, body, "<script>x</script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.Contains(t, body, `action="/logout"`)
}
