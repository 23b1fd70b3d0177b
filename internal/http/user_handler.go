package httpapi

import (
	"errors"
	"net/http"

	"coldwatch-data/internal/repository"
	"coldwatch-data/internal/service"

	"go.uber.org/zap"
)

type UserHandler struct {
	users  service.UserService
	logger *zap.Logger
}

func NewUserHandler(users service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, total, err := h.users.ListUsers(r.Context(), parseInt(q.Get("page"), 1), parseInt(q.Get("size"), 50))
	if err != nil {
		h.logger.Error("Failed to list users", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list users"))
		return
	}
	list := make([]map[string]any, 0, len(items))
	for i := range items {
		list = append(list, items[i].ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": list,
		"total": total,
	}))
}

type createUserRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	user, err := h.users.CreateUser(r.Context(), service.CreateUserRequest{
		Account:  req.Account,
		Password: req.Password,
		Nickname: req.Nickname,
		Role:     req.Role,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(user.ToJSON()))
}

type updateUserRequest struct {
	Account  string  `json:"account"`
	Password *string `json:"password"`
	Nickname *string `json:"nickname"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request, userID string) {
	var req updateUserRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	err := h.users.UpdateUser(r.Context(), userID, service.UpdateUserRequest{
		Account:  req.Account,
		Password: req.Password,
		Nickname: req.Nickname,
		Role:     req.Role,
		Status:   req.Status,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("user not found"))
			return
		}
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request, userID string) {
	// A user deleting their own account would lock the session out mid-flight.
	if self, ok := SessionUserFrom(r.Context()); ok && self.UserID == userID {
		writeJSON(w, http.StatusBadRequest, Fail("cannot delete your own account"))
		return
	}
	if err := h.users.DeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("user not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, Fail("failed to delete user"))
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
