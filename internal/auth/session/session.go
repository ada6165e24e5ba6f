// Package session holds the observable authentication state. The flow
// controller and the callback reconciler publish; everything else reads.
package session

import (
	"sync"

	"github.com/brizzai/tutor-auth/internal/auth/models"
)

// State is an immutable snapshot of the authentication state.
type State struct {
	User            *models.UserProfile
	IsAuthenticated bool
	IsLoading       bool
}

// Initial is the state before the startup check resolves.
func Initial() State {
	return State{IsLoading: true}
}

// LoggedOut is the settled unauthenticated state.
func LoggedOut() State {
	return State{}
}

// Authenticated is the settled state after a server-verified profile fetch.
func Authenticated(user *models.UserProfile) State {
	return State{User: user.Clone(), IsAuthenticated: true}
}

// Reader is the read-only view handed to the rest of the application.
type Reader interface {
	Snapshot() State
	// Subscribe registers fn for every published state and returns a function that unregisters it.
	Subscribe(fn func(State)) (unsubscribe func())
}

// Publisher is held only by the components allowed to transition the state.
type Publisher interface {
	Reader
	Publish(State)
}

// Store is the single owner of the session state.
type Store struct {
	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// NewStore creates a store in the Initial state.
func NewStore() *Store {
	return &Store{
		state: Initial(),
		subs:  make(map[int]func(State)),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyState(s.state)
}

// Publish replaces the state and notifies subscribers outside the lock.
func (s *Store) Publish(next State) {
	s.mu.Lock()
	s.state = copyState(next)
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	snapshot := s.state
	s.mu.Unlock()

	for _, fn := range subs {
		fn(copyState(snapshot))
	}
}

func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func copyState(st State) State {
	st.User = st.User.Clone()
	return st
}
