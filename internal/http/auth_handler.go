package httpapi

import (
	"errors"
	"net/http"

	"coldwatch-data/internal/service"

	"go.uber.org/zap"
)

type AuthHandler struct {
	users    service.UserService
	sessions *SessionStore
	logger   *zap.Logger
}

func NewAuthHandler(users service.UserService, sessions *SessionStore, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, logger: logger}
}

type loginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	user, err := h.users.Login(r.Context(), req.Account, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, Fail("invalid account or password"))
			return
		}
		h.logger.Error("Login failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("login failed"))
		return
	}

	token := h.sessions.Issue(SessionUser{
		UserID:  user.UserID,
		Account: user.Account,
		Role:    user.Role,
	})

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"token": token,
		"user":  user.ToJSON(),
	}))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Revoke(bearerToken(r))
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := SessionUserFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"user_id": user.UserID,
		"account": user.Account,
		"role":    user.Role,
	}))
}
