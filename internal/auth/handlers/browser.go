package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brizzai/tutor-auth/internal/auth/flow"
	"github.com/brizzai/tutor-auth/internal/auth/providers"
	"github.com/brizzai/tutor-auth/internal/auth/session"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/brizzai/tutor-auth/internal/requester"
	"github.com/brizzai/tutor-auth/internal/storage"
	"github.com/brizzai/tutor-auth/internal/telemetry"
	"go.uber.org/zap"
)

// BrowserSession is everything one browser would hold: durable storage,
// tab-scoped ephemeral storage and its own session state and controller.
type BrowserSession struct {
	ID         string
	Controller *flow.Controller
	State      session.Reader
	Pending    storage.PendingStorage

	bootOnce sync.Once

	mu    sync.Mutex
	flash string

	lastSeen time.Time // guarded by the registry
}

// Bootstrap runs the startup check once per browser.
func (b *BrowserSession) Bootstrap(ctx context.Context) {
	b.bootOnce.Do(func() {
		st := b.Controller.Bootstrap(ctx)
		logger.Debug("browser session started",
			zap.String("browser_session", b.ID),
			zap.Bool("authenticated", st.IsAuthenticated))
	})
}

// Alert keeps the message for the next page render.
func (b *BrowserSession) Alert(title, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flash = title + ": " + message
}

// TakeFlash returns and clears the pending alert.
func (b *BrowserSession) TakeFlash() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg := b.flash
	b.flash = ""
	return msg
}

const (
	defaultSessionTTL  = 12 * time.Hour
	defaultMaxSessions = 10000
)

// SessionRegistry creates browser sessions on first contact and forgets
// them after ttl without a request, or oldest first beyond maxSessions.
type SessionRegistry struct {
	cfg      *config.Config
	provider providers.Provider
	sink     telemetry.Sink

	ttl         time.Duration
	maxSessions int
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*BrowserSession
}

func NewSessionRegistry(cfg *config.Config, provider providers.Provider, sink telemetry.Sink) *SessionRegistry {
	return &SessionRegistry{
		cfg:         cfg,
		provider:    provider,
		sink:        sink,
		ttl:         defaultSessionTTL,
		maxSessions: defaultMaxSessions,
		now:         time.Now,
		sessions:    make(map[string]*BrowserSession),
	}
}

// Get returns the session for id, creating it if needed.
func (r *SessionRegistry) Get(id string) (*BrowserSession, error) {
	if id == "" {
		return nil, fmt.Errorf("missing browser session id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweepLocked(now)

	if bs, ok := r.sessions[id]; ok {
		bs.lastSeen = now
		return bs, nil
	}

	bs, err := r.newBrowserSession(id)
	if err != nil {
		return nil, err
	}
	bs.lastSeen = now
	r.sessions[id] = bs
	r.evictOverflowLocked()
	return bs, nil
}

// Len returns the number of known browser sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) sweepLocked(now time.Time) {
	for id, bs := range r.sessions {
		if now.Sub(bs.lastSeen) > r.ttl {
			delete(r.sessions, id)
			logger.Debug("browser session expired", zap.String("browser_session", id))
		}
	}
}

func (r *SessionRegistry) evictOverflowLocked() {
	for len(r.sessions) > r.maxSessions {
		var oldestID string
		var oldest time.Time
		for id, bs := range r.sessions {
			if oldestID == "" || bs.lastSeen.Before(oldest) {
				oldestID, oldest = id, bs.lastSeen
			}
		}
		delete(r.sessions, oldestID)
		logger.Debug("browser session evicted", zap.String("browser_session", oldestID))
	}
}

func (r *SessionRegistry) newBrowserSession(id string) (*BrowserSession, error) {
	durable := storage.NewMemoryStore()
	tokens := storage.NewTokenStore(durable)
	pending := storage.NewPendingStore(storage.NewMemoryStore())
	state := session.NewStore()

	strategy, err := flow.SelectStrategy(flow.Capabilities{
		Navigator:    pageNavigator{},
		Pending:      pending,
		Origin:       r.cfg.Server.ServerOrigin(),
		CallbackPath: r.cfg.OAuth.CallbackPath,
	})
	if err != nil {
		return nil, err
	}

	bs := &BrowserSession{
		ID:      id,
		State:   state,
		Pending: pending,
	}
	bs.Controller = flow.NewController(flow.ControllerParams{
		Config:   r.cfg,
		Provider: r.provider,
		Strategy: strategy,
		Requester: requester.NewHTTPRequester(requester.HTTPRequesterParams{
			Config:      r.cfg,
			Builder:     requester.NewHTTPRequestBuilder(r.cfg),
			AuthManager: requester.NewTokenAuthManager(tokens),
			Tokens:      tokens,
		}),
		Tokens:   tokens,
		Session:  state,
		Notifier: bs,
		Sink:     r.sink,
	})
	return bs, nil
}
