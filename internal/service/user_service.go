package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/repository"

	"go.uber.org/zap"
)

// ErrInvalidCredentials returned for a bad account/password pair and for
// disabled accounts, indistinguishably.
var ErrInvalidCredentials = errors.New("invalid account or password")

// UserService application accounts and login verification.
type UserService interface {
	Login(ctx context.Context, account, password string) (*domain.User, error)
	ListUsers(ctx context.Context, page, size int) ([]domain.User, int, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error)
	UpdateUser(ctx context.Context, userID string, req UpdateUserRequest) error
	DeleteUser(ctx context.Context, userID string) error
}

type userService struct {
	usersRepo repository.UsersRepo
	logger    *zap.Logger
}

func NewUserService(usersRepo repository.UsersRepo, logger *zap.Logger) UserService {
	return &userService{usersRepo: usersRepo, logger: logger}
}

// hashCredentials follows the frontend hashing rule:
// sha256(lower(account) + ":" + password).
func hashCredentials(account, password string) []byte {
	sum := sha256.Sum256([]byte(normalizeAccount(account) + ":" + password))
	return sum[:]
}

func normalizeAccount(account string) string {
	return strings.TrimSpace(strings.ToLower(account))
}

func (s *userService) Login(ctx context.Context, account, password string) (*domain.User, error) {
	account = normalizeAccount(account)
	if account == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.usersRepo.GetByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !bytes.Equal(user.PasswordHash, hashCredentials(account, password)) {
		s.logger.Warn("Login failed, wrong password", zap.String("account", account))
		return nil, ErrInvalidCredentials
	}
	if user.Status != "active" {
		s.logger.Warn("Login rejected, account disabled", zap.String("account", account))
		return nil, ErrInvalidCredentials
	}

	s.logger.Info("User logged in",
		zap.String("account", account),
		zap.String("role", user.Role),
	)
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, page, size int) ([]domain.User, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 50
	}
	return s.usersRepo.ListUsers(ctx, page, size)
}

type CreateUserRequest struct {
	Account  string
	Password string
	Nickname string
	Role     string
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	account := normalizeAccount(req.Account)
	if account == "" {
		return nil, fmt.Errorf("account is required")
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	if !domain.ValidRole(req.Role) {
		return nil, fmt.Errorf("invalid role: %s", req.Role)
	}

	user := &domain.User{
		UserID:       uuid.NewString(),
		Account:      account,
		PasswordHash: hashCredentials(account, req.Password),
		Role:         req.Role,
		Status:       "active",
	}
	if req.Nickname != "" {
		user.Nickname = sql.NullString{String: req.Nickname, Valid: true}
	}

	if err := s.usersRepo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

type UpdateUserRequest struct {
	Password *string
	Nickname *string
	Role     *string
	Status   *string
	// Account is needed to rehash when changing the password.
	Account string
}

func (s *userService) UpdateUser(ctx context.Context, userID string, req UpdateUserRequest) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	payload := map[string]any{}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			return fmt.Errorf("password must be at least 8 characters")
		}
		if req.Account == "" {
			return fmt.Errorf("account is required to change the password")
		}
		payload["password_hash"] = hashCredentials(req.Account, *req.Password)
	}
	if req.Nickname != nil {
		payload["nickname"] = *req.Nickname
	}
	if req.Role != nil {
		if !domain.ValidRole(*req.Role) {
			return fmt.Errorf("invalid role: %s", *req.Role)
		}
		payload["role"] = *req.Role
	}
	if req.Status != nil {
		if *req.Status != "active" && *req.Status != "disabled" {
			return fmt.Errorf("invalid status: %s", *req.Status)
		}
		payload["status"] = *req.Status
	}
	if len(payload) == 0 {
		return nil
	}
	return s.usersRepo.UpdateUser(ctx, userID, payload)
}

func (s *userService) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	return s.usersRepo.DeleteUser(ctx, userID)
}
