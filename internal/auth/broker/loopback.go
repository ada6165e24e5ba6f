// Package broker provides native-runtime redirect mechanisms for the login flow.
package broker

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/auth/flow"
	"github.com/brizzai/tutor-auth/internal/logger"
	"go.uber.org/zap"
)

const loopbackHost = "127.0.0.1"

// Opener shows url to the user, usually by launching the system browser.
type Opener func(url string) error

// LoopbackBroker receives the provider redirect on a loopback listener. It is
// both the RedirectResolver and the Broker of the in-process strategy.
type LoopbackBroker struct {
	port int
	open Opener

	mu       sync.Mutex
	listener net.Listener
}

// NewLoopbackBroker listens on 127.0.0.1:port; port 0 picks a free one.
func NewLoopbackBroker(port int, open Opener) *LoopbackBroker {
	return &LoopbackBroker{port: port, open: open}
}

// RedirectURI binds the listener if needed and returns its callback URL.
func (b *LoopbackBroker) RedirectURI(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listener == nil {
		ln, err := net.Listen("tcp", net.JoinHostPort(loopbackHost, strconv.Itoa(b.port)))
		if err != nil {
			return "", fmt.Errorf("failed to listen for oauth callback: %w", err)
		}
		b.listener = ln
	}
	return b.redirectURILocked(), nil
}

func (b *LoopbackBroker) redirectURILocked() string {
	return "http://" + b.listener.Addr().String() + constants.NativeRedirectPath
}

// Open serves one callback, opens authURL and waits for the redirect or ctx.
// The listener is released before it returns.
func (b *LoopbackBroker) Open(ctx context.Context, authURL, redirectURI string) (flow.BrokerResult, error) {
	if _, err := b.RedirectURI(ctx); err != nil {
		return flow.BrokerResult{}, err
	}

	b.mu.Lock()
	ln := b.listener
	bound := b.redirectURILocked()
	b.listener = nil
	b.mu.Unlock()

	if redirectURI != bound {
		_ = ln.Close()
		return flow.BrokerResult{}, fmt.Errorf("redirect uri %q does not match listener %q", redirectURI, bound)
	}

	results := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(constants.NativeRedirectPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		logger.Debug("received oauth callback", zap.String("remote", r.RemoteAddr))

		writeCallbackPage(w, r.URL.Query().Get(constants.ParamError))
		select {
		case results <- redirectURI + "?" + r.URL.RawQuery:
		default:
		}
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("oauth callback server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("oauth callback server shutdown failed", zap.Error(err))
		}
	}()

	if err := b.open(authURL); err != nil {
		return flow.BrokerResult{}, fmt.Errorf("failed to open browser: %w", err)
	}

	select {
	case u := <-results:
		return flow.BrokerResult{Type: flow.BrokerSuccess, URL: u}, nil
	case <-ctx.Done():
		logger.Info("oauth callback wait ended", zap.Error(ctx.Err()))
		return flow.BrokerResult{Type: flow.BrokerDismiss}, nil
	}
}

func writeCallbackPage(w http.ResponseWriter, providerErr string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if providerErr != "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprintf(w, "<html><body><h1>Sign-in failed</h1><p>%s</p><p>You can close this window.</p></body></html>",
			html.EscapeString(providerErr))
		return
	}
	_, _ = fmt.Fprint(w, "<html><body><h1>Signed in</h1><p>You can close this window and return to the app.</p></body></html>")
}

// SchemeResolver returns <scheme>:/oauth/callback for hosts that own a custom URL scheme.
type SchemeResolver struct {
	Scheme string
}

func (s SchemeResolver) RedirectURI(context.Context) (string, error) {
	if s.Scheme == "" {
		return "", errors.New("native scheme is not configured")
	}
	return s.Scheme + ":" + constants.NativeRedirectPath, nil
}
