// Package callback completes a browser-runtime login when the identity
// provider redirects back to the app.
package callback

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/brizzai/tutor-auth/internal/auth/autherr"
	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/auth/models"
	"github.com/brizzai/tutor-auth/internal/auth/session"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/brizzai/tutor-auth/internal/storage"
	"go.uber.org/zap"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusWaiting    Status = "waiting"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

var (
	ErrMissingPending = errors.New("no pending authorization for this callback")
	ErrStateMismatch  = errors.New("callback state does not match pending authorization")
	ErrGaveUp         = errors.New("session did not become authenticated")
)

// Router moves the app to another screen, replacing the callback screen.
type Router interface {
	Replace(path string)
}

// Presenter shows the callback screen status.
type Presenter interface {
	Show(status Status, message string)
}

// Processor redeems an authorization code. Implemented by flow.Controller.
type Processor interface {
	ProcessAuthResult(ctx context.Context, code, codeVerifier, redirectURI string) (*models.LoginResult, error)
}

type Options struct {
	Callback config.CallbackConfig
	// DedicatedPath is the provider-specific callback route; the generic route defers to it.
	DedicatedPath string
	Pending       storage.PendingStorage
	Processor     Processor
	Session       session.Reader
	Router        Router
	Presenter     Presenter
	Clock         Clock
}

// Reconciler handles one mount of the callback screen. It processes at most
// one callback no matter how many times it is invoked.
type Reconciler struct {
	opts    Options
	started atomic.Bool
}

func New(opts Options) *Reconciler {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	return &Reconciler{opts: opts}
}

// HandleGeneric is the catch-all route. It does nothing at all when the URL
// belongs to the dedicated route, which handles it instead.
func (r *Reconciler) HandleGeneric(ctx context.Context, u *url.URL) error {
	if r.IsDedicatedPath(u.Path) {
		logger.Debug("generic callback deferring to dedicated route", zap.String("path", u.Path))
		return nil
	}
	return r.Handle(ctx, u)
}

// IsDedicatedPath reports whether p is served by the dedicated callback route.
func (r *Reconciler) IsDedicatedPath(p string) bool {
	dedicated := strings.TrimRight(r.opts.DedicatedPath, "/")
	if dedicated == "" {
		return false
	}
	p = strings.TrimRight(p, "/")
	return p == dedicated || strings.HasPrefix(p, dedicated+"/")
}

// Handle processes the provider redirect in u. It returns after the final
// navigation; the error is the cause of a failed attempt, for logging.
func (r *Reconciler) Handle(ctx context.Context, u *url.URL) error {
	if !r.started.CompareAndSwap(false, true) {
		logger.Debug("callback already handled", zap.String("path", u.Path))
		return nil
	}

	r.opts.Presenter.Show(StatusProcessing, "Completing sign-in...")
	q := u.Query()

	if code := q.Get(constants.ParamError); code != "" {
		r.deletePending(ctx)
		err := &autherr.ProviderError{Code: code, Description: q.Get(constants.ParamErrorDescription)}
		return r.fail(ctx, "Sign-in was not completed.", err)
	}

	code := q.Get(constants.ParamCode)
	if code == "" {
		return r.awaitSession(ctx)
	}

	pending, err := r.opts.Pending.Load(ctx)
	if err != nil || pending == nil || pending.CodeVerifier == "" || pending.RedirectURI == "" {
		r.deletePending(ctx)
		if err == nil {
			err = ErrMissingPending
		}
		return r.fail(ctx, "Your sign-in session expired. Please try again.", err)
	}
	if pending.State != "" && q.Get(constants.ParamState) != pending.State {
		r.deletePending(ctx)
		return r.fail(ctx, "Sign-in could not be verified. Please try again.", ErrStateMismatch)
	}

	result, err := r.opts.Processor.ProcessAuthResult(ctx, code, pending.CodeVerifier, pending.RedirectURI)
	r.deletePending(ctx)
	if err == nil && (result == nil || !result.Authenticated) {
		err = errors.New("login did not complete")
	}
	if err != nil {
		return r.fail(ctx, "Sign-in failed. Please try again.", err)
	}

	r.opts.Presenter.Show(StatusSuccess, "Signed in")
	if err := r.opts.Clock.Sleep(ctx, r.opts.Callback.SuccessDelay); err != nil {
		return err
	}
	if result.IsNewUser {
		r.opts.Router.Replace(r.opts.Callback.OnboardingPath)
	} else {
		r.opts.Router.Replace(r.opts.Callback.HomePath)
	}
	return nil
}

func (r *Reconciler) awaitSession(ctx context.Context) error {
	r.opts.Presenter.Show(StatusWaiting, "Checking your sign-in...")

	state := WaitingShort
	for state == WaitingShort || state == WaitingExtended {
		if err := r.opts.Clock.Sleep(ctx, waitDelay(state, r.opts.Callback)); err != nil {
			return err
		}
		next := nextWait(state, r.opts.Session.Snapshot().IsAuthenticated)
		logger.Debug("callback wait transition", zap.Stringer("from", state), zap.Stringer("to", next))
		state = next
	}

	if state == Resolved {
		r.opts.Presenter.Show(StatusSuccess, "Signed in")
		r.opts.Router.Replace(r.opts.Callback.HomePath)
		return nil
	}

	r.opts.Presenter.Show(StatusError, "Sign-in did not complete.")
	r.opts.Router.Replace(r.opts.Callback.LoginPath)
	return ErrGaveUp
}

func (r *Reconciler) fail(ctx context.Context, message string, cause error) error {
	logger.Warn("callback failed", zap.Error(cause))
	r.opts.Presenter.Show(StatusError, message)
	if err := r.opts.Clock.Sleep(ctx, r.opts.Callback.FailureDelay); err != nil {
		return err
	}
	r.opts.Router.Replace(r.opts.Callback.LoginPath)
	return cause
}

func (r *Reconciler) deletePending(ctx context.Context) {
	if err := r.opts.Pending.Delete(ctx); err != nil {
		logger.Warn("failed to delete pending authorization", zap.Error(err))
	}
}
