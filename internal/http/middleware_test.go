package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coldwatch-data/internal/domain"
)

func newTestRouter() (*Router, *SessionStore) {
	sessions := NewSessionStore()
	return NewRouter(sessions, zap.NewNop()), sessions
}

func protectedProbe(rt *Router, minRole string) http.HandlerFunc {
	return rt.requireRole(minRole, func(w http.ResponseWriter, r *http.Request) {
		user, _ := SessionUserFrom(r.Context())
		writeJSON(w, http.StatusOK, Ok(user.Account))
	})
}

func TestRequireRole_NoToken(t *testing.T) {
	rt, _ := newTestRouter()
	h := protectedProbe(rt, domain.RoleEmployee)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole_ValidSession(t *testing.T) {
	rt, sessions := newTestRouter()
	token := sessions.Issue(SessionUser{UserID: "u-1", Account: "alice", Role: domain.RoleEmployee})
	h := protectedProbe(rt, domain.RoleEmployee)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
}

func TestRequireRole_InsufficientRole(t *testing.T) {
	rt, sessions := newTestRouter()
	token := sessions.Issue(SessionUser{UserID: "u-1", Account: "bob", Role: domain.RoleEmployee})
	h := protectedProbe(rt, domain.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRole_AdminPassesManagerCheck(t *testing.T) {
	rt, sessions := newTestRouter()
	token := sessions.Issue(SessionUser{UserID: "u-1", Account: "root", Role: domain.RoleAdmin})
	h := protectedProbe(rt, domain.RoleManager)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionStore_ExpiredTokenRejected(t *testing.T) {
	sessions := NewSessionStore()
	token := sessions.Issue(SessionUser{UserID: "u-1", Account: "alice", Role: domain.RoleAdmin})

	sessions.now = func() time.Time { return time.Now().Add(sessionTTL + time.Minute) }

	_, ok := sessions.Lookup(token)
	assert.False(t, ok)
}

func TestSessionStore_RevokedTokenRejected(t *testing.T) {
	sessions := NewSessionStore()
	token := sessions.Issue(SessionUser{UserID: "u-1", Account: "alice", Role: domain.RoleAdmin})

	_, ok := sessions.Lookup(token)
	require.True(t, ok)

	sessions.Revoke(token)
	_, ok = sessions.Lookup(token)
	assert.False(t, ok)
}
