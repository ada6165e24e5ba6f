package handlers

import (
	"errors"
	"net/http"

	"github.com/brizzai/tutor-auth/internal/auth/callback"
	"github.com/brizzai/tutor-auth/internal/auth/flow"
	"github.com/brizzai/tutor-auth/internal/auth/middleware"
	"github.com/brizzai/tutor-auth/internal/auth/models"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/brizzai/tutor-auth/internal/utils"
	"go.uber.org/zap"
)

// PathLoginStart begins a page-redirect login.
const PathLoginStart = "/login/google"

// Handler serves the browser runtime of the login flow
type Handler struct {
	cfg      *config.Config
	sessions *SessionRegistry
	clock    callback.Clock
}

// NewHandler creates a new Handler instance
func NewHandler(cfg *config.Config, sessions *SessionRegistry, clock callback.Clock) *Handler {
	if clock == nil {
		clock = callback.RealClock{}
	}
	return &Handler{
		cfg:      cfg,
		sessions: sessions,
		clock:    clock,
	}
}

func (h *Handler) browserSession(w http.ResponseWriter, r *http.Request) (*BrowserSession, bool) {
	bs, err := h.sessions.Get(middleware.BrowserSessionID(r.Context()))
	if err != nil {
		logger.Error("Failed to resolve browser session", zap.Error(err))
		utils.WriteError(w, "invalid_session", err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return bs, true
}

// HandleLoginPage handles the login entry point
func (h *Handler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bs, ok := h.browserSession(w, r)
	if !ok {
		return
	}
	bs.Bootstrap(r.Context())

	if bs.State.Snapshot().IsAuthenticated {
		http.Redirect(w, r, h.cfg.Callback.HomePath, http.StatusSeeOther)
		return
	}
	renderPage(w, pageData{
		Title:    "Sign in",
		Alert:    bs.TakeFlash(),
		LinkURL:  PathLoginStart,
		LinkText: "Sign in with Google",
	})
}

// HandleLoginStart builds the authorization request and sends the page to Google
func (h *Handler) HandleLoginStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bs, ok := h.browserSession(w, r)
	if !ok {
		return
	}

	ctx, p := withPage(r.Context())
	result, err := bs.Controller.Login(ctx)
	switch {
	case errors.Is(err, flow.ErrLoginInProgress):
		utils.WriteError(w, "login_in_progress", err.Error(), http.StatusConflict)
	case err != nil:
		logger.Warn("Login failed", zap.Error(err))
		http.Redirect(w, r, h.cfg.Callback.LoginPath, http.StatusSeeOther)
	case result.Pending && p.Location() != "":
		http.Redirect(w, r, p.Location(), http.StatusFound)
	default:
		http.Redirect(w, r, h.cfg.Callback.HomePath, http.StatusSeeOther)
	}
}

// HandleCallback handles the dedicated provider callback route
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, false)
}

// HandleGenericCallback handles the catch-all callback route
func (h *Handler) HandleGenericCallback(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, true)
}

// reconcile mounts a callback screen for this request. When the generic route
// defers, the same mount is handed to the dedicated route, as if both were mounted.
func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request, generic bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bs, ok := h.browserSession(w, r)
	if !ok {
		return
	}

	ctx, p := withPage(r.Context())
	rec := callback.New(callback.Options{
		Callback:      h.cfg.Callback,
		DedicatedPath: h.cfg.OAuth.CallbackPath,
		Pending:       bs.Pending,
		Processor:     bs.Controller,
		Session:       bs.State,
		Router:        p,
		Presenter:     p,
		Clock:         h.clock,
	})

	var err error
	if generic {
		err = rec.HandleGeneric(ctx, r.URL)
		if p.Location() == "" && rec.IsDedicatedPath(r.URL.Path) {
			err = rec.Handle(ctx, r.URL)
		}
	} else {
		err = rec.Handle(ctx, r.URL)
	}
	if err != nil {
		logger.Info("Callback did not complete a login", zap.Error(err))
	}

	if location := p.Location(); location != "" {
		http.Redirect(w, r, location, http.StatusSeeOther)
		return
	}
	status, message := p.Status()
	renderPage(w, pageData{
		Title:    string(status),
		Message:  message,
		LinkURL:  h.cfg.Callback.LoginPath,
		LinkText: "Back to sign in",
	})
}

// HandleHome handles the main experience page
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != h.cfg.Callback.HomePath {
		http.NotFound(w, r)
		return
	}
	h.authenticatedPage(w, r, "Welcome back")
}

// HandleOnboarding handles the first-login page
func (h *Handler) HandleOnboarding(w http.ResponseWriter, r *http.Request) {
	h.authenticatedPage(w, r, "Welcome")
}

func (h *Handler) authenticatedPage(w http.ResponseWriter, r *http.Request, title string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bs, ok := h.browserSession(w, r)
	if !ok {
		return
	}
	bs.Bootstrap(r.Context())

	st := bs.State.Snapshot()
	if !st.IsAuthenticated {
		http.Redirect(w, r, h.cfg.Callback.LoginPath, http.StatusSeeOther)
		return
	}
	renderPage(w, pageData{
		Title:   title + ", " + st.User.DisplayName(),
		Message: st.User.Email,
		Logout:  true,
	})
}

type sessionResponse struct {
	IsAuthenticated bool                `json:"is_authenticated"`
	IsLoading       bool                `json:"is_loading"`
	User            *models.UserProfile `json:"user,omitempty"`
	FlowState       string              `json:"flow_state"`
}

// HandleSession returns the session state of this browser
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bs, ok := h.browserSession(w, r)
	if !ok {
		return
	}
	bs.Bootstrap(r.Context())

	st := bs.State.Snapshot()
	utils.WriteJSON(w, sessionResponse{
		IsAuthenticated: st.IsAuthenticated,
		IsLoading:       st.IsLoading,
		User:            st.User,
		FlowState:       bs.Controller.FlowState().String(),
	})
}

// HandleLogout signs this browser out
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bs, ok := h.browserSession(w, r)
	if !ok {
		return
	}

	if err := bs.Controller.Logout(r.Context()); err != nil {
		logger.Error("Failed to log out", zap.Error(err))
		utils.WriteError(w, "logout_failed", err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.cfg.Callback.LoginPath, http.StatusSeeOther)
}
