package httpapi

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionTTL idle lifetime of a login session.
const sessionTTL = 12 * time.Hour

// SessionUser identity attached to an authenticated request.
type SessionUser struct {
	UserID  string
	Account string
	Role    string
}

type session struct {
	user      SessionUser
	expiresAt time.Time
}

// SessionStore in-memory bearer-token sessions. Tokens are opaque UUIDs;
// a restart logs everyone out, which is acceptable for this admin surface.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]session

	now func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: map[string]session{},
		now:      time.Now,
	}
}

// Issue creates a session and returns its bearer token.
func (s *SessionStore) Issue(user SessionUser) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = session{user: user, expiresAt: s.now().Add(sessionTTL)}
	s.mu.Unlock()
	return token
}

// Lookup resolves a token, sliding its expiry. Returns false for unknown or
// expired tokens.
func (s *SessionStore) Lookup(token string) (SessionUser, bool) {
	if token == "" {
		return SessionUser{}, false
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return SessionUser{}, false
	}
	if !sess.expiresAt.After(now) {
		delete(s.sessions, token)
		return SessionUser{}, false
	}
	sess.expiresAt = now.Add(sessionTTL)
	s.sessions[token] = sess
	return sess.user, true
}

func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}
