// Package handler assembles the HTTP handler for the browser runtime.
package handler

import (
	"net/http"

	"github.com/brizzai/tutor-auth/internal/auth"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/brizzai/tutor-auth/internal/utils"
)

// PathHealth answers liveness probes.
const PathHealth = "/healthz"

// Handler manages HTTP request handling and middleware configuration.
type Handler struct {
	auth *auth.Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(auth *auth.Service) *Handler {
	return &Handler{
		auth: auth,
	}
}

// CreateHTTPHandler creates an HTTP handler with the login routes and the
// middleware stack around them.
func (h *Handler) CreateHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathHealth, func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, map[string]string{"status": "ok"})
	})

	h.auth.RegisterRoutes(mux)
	logger.Info("Registered login routes")
	return h.auth.WrapWithMiddleware(mux)
}
