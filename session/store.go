// Package session holds the in-memory authentication state of the client:
// who is logged in, with which tokens, and whether a session operation is in
// flight.
package session

import (
	"sync"

	"github.com/jrsteele09/librahub-admin/token"
	"github.com/jrsteele09/librahub-admin/users"
)

// State is a point-in-time copy of the session. Nil pointers mean "absent".
// IsAuthenticated is true exactly when User is non-nil.
type State struct {
	User            *users.User // Identity from GET /me
	AccessToken     *string     // Short-lived bearer credential
	RefreshToken    *string     // Exchanged at /auth/refresh
	IsAuthenticated bool        // User and AccessToken came from a successful flow
	IsLoading       bool        // A login, refresh or initialize is in flight
	Error           *string     // Message from the last failed session operation
}

func (s State) clone() State {
	c := s
	c.User = s.User.Clone()
	c.AccessToken = clonePtr(s.AccessToken)
	c.RefreshToken = clonePtr(s.RefreshToken)
	c.Error = clonePtr(s.Error)
	return c
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Listener is called with the post-mutation state, outside the store lock.
type Listener func(State)

// Store is the single source of truth for session state. Every mutation is
// applied under one lock so readers never see a half-applied update.
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// NewStore returns an empty, unauthenticated store.
func NewStore() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// Hydrate seeds the store from durable storage on process start. The user is
// unknown until the profile is fetched, so the session stays unauthenticated
// and is marked loading when there is an access token to validate.
func (s *Store) Hydrate(accessToken, refreshToken string) {
	s.mutate(func(st *State) {
		st.User = nil
		st.IsAuthenticated = false
		st.AccessToken = nonEmpty(accessToken)
		st.RefreshToken = nonEmpty(refreshToken)
		st.IsLoading = accessToken != ""
	})
}

// SetCredentials overwrites the user and both tokens.
func (s *Store) SetCredentials(user users.User, tokens token.Pair) {
	s.mutate(func(st *State) {
		st.User = user.Clone()
		st.AccessToken = &tokens.AccessToken
		st.RefreshToken = &tokens.RefreshToken
		st.IsAuthenticated = true
		st.Error = nil
	})
}

// Logout drops the user and both tokens.
func (s *Store) Logout() {
	s.mutate(func(st *State) {
		st.User = nil
		st.AccessToken = nil
		st.RefreshToken = nil
		st.IsAuthenticated = false
		st.Error = nil
	})
}

// SetLoading touches only the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.mutate(func(st *State) {
		st.IsLoading = loading
	})
}

func (s *Store) SetError(message string) {
	s.mutate(func(st *State) {
		st.Error = &message
	})
}

func (s *Store) ClearError() {
	s.mutate(func(st *State) {
		st.Error = nil
	})
}

// Subscribe registers l for every subsequent mutation.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) mutate(apply func(*State)) {
	s.mu.Lock()
	apply(&s.state)
	snapshot := s.state.clone()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func nonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
