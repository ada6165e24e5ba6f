package auth

import (
	"net/http"

	"github.com/brizzai/tutor-auth/internal/auth/callback"
	"github.com/brizzai/tutor-auth/internal/auth/handlers"
	"github.com/brizzai/tutor-auth/internal/auth/middleware"
	"github.com/brizzai/tutor-auth/internal/auth/providers"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/telemetry"
)

const (
	PathSession = "/session"
	PathLogout  = "/logout"
)

// Service represents the browser-runtime login service
type Service struct {
	config   *config.Config
	sessions *handlers.SessionRegistry
	handler  *handlers.Handler
}

// NewService creates a new login service. A nil clock uses the wall clock.
func NewService(cfg *config.Config, provider providers.Provider, sink telemetry.Sink, clock callback.Clock) *Service {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	sessions := handlers.NewSessionRegistry(cfg, provider, sink)

	return &Service{
		config:   cfg,
		sessions: sessions,
		handler:  handlers.NewHandler(cfg, sessions, clock),
	}
}

// RegisterRoutes registers all login-related routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	cb := s.config.Callback

	// Pages
	mux.HandleFunc(cb.HomePath, s.handler.HandleHome)
	mux.HandleFunc(cb.LoginPath, s.handler.HandleLoginPage)
	mux.HandleFunc(cb.OnboardingPath, s.handler.HandleOnboarding)

	// Login flow
	mux.HandleFunc(handlers.PathLoginStart, s.handler.HandleLoginStart)
	mux.HandleFunc(s.config.OAuth.CallbackPath, s.handler.HandleCallback)
	if g := s.config.OAuth.GenericCallbackPath; g != "" && g != s.config.OAuth.CallbackPath {
		mux.HandleFunc(g, s.handler.HandleGenericCallback)
	}

	mux.HandleFunc(PathSession, s.handler.HandleSession)
	mux.HandleFunc(PathLogout, s.handler.HandleLogout)
}

// WrapWithMiddleware wraps the mux with browser-session, CORS and logging middleware
func (s *Service) WrapWithMiddleware(handler http.Handler) http.Handler {
	return middleware.Logging(
		middleware.CORSWithOrigins(s.config.Server.AllowOrigins)(
			middleware.BrowserSession(handler),
		),
	)
}

// Sessions returns the registry of browser sessions
func (s *Service) Sessions() *handlers.SessionRegistry {
	return s.sessions
}
