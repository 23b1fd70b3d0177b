package httpapi

import (
	"context"
	"net/http"
	"strings"

	"coldwatch-data/internal/domain"
)

type contextKey string

const sessionUserKey contextKey = "session-user"

// roleRank ordering for the minimum-role check. Higher ranks include the
// permissions of lower ones.
var roleRank = map[string]int{
	domain.RoleEmployee: 1,
	domain.RoleManager:  2,
	domain.RoleAdmin:    3,
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// SessionUserFrom returns the authenticated user stored on the request
// context by requireRole.
func SessionUserFrom(ctx context.Context) (SessionUser, bool) {
	user, ok := ctx.Value(sessionUserKey).(SessionUser)
	return user, ok
}

// requireRole wraps a handler with session authentication and a minimum
// role.
func (rt *Router) requireRole(minRole string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := rt.sessions.Lookup(bearerToken(r))
		if !ok {
			writeJSON(w, http.StatusUnauthorized, Result[any]{
				Code:    ResultTokenExpired,
				Type:    "error",
				Message: "authentication required",
			})
			return
		}
		if roleRank[user.Role] < roleRank[minRole] {
			writeJSON(w, http.StatusForbidden, Fail("insufficient permissions"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionUserKey, user)))
	}
}
