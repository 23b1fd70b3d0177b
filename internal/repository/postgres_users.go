package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"coldwatch-data/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PostgresUsersRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresUsersRepo(db *sql.DB, logger *zap.Logger) *PostgresUsersRepo {
	return &PostgresUsersRepo{db: db, logger: logger}
}

func (r *PostgresUsersRepo) GetByAccount(ctx context.Context, account string) (*domain.User, error) {
	if account == "" {
		return nil, fmt.Errorf("account is required")
	}
	var u domain.User
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, account, password_hash, nickname, role, status, created_at
		 FROM users WHERE account = $1`,
		account,
	).Scan(&u.UserID, &u.Account, &u.PasswordHash, &u.Nickname, &u.Role, &u.Status, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresUsersRepo) ListUsers(ctx context.Context, page, size int) ([]domain.User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, account, password_hash, nickname, role, status, created_at
		 FROM users ORDER BY account LIMIT $1 OFFSET $2`,
		size, (page-1)*size,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.UserID, &u.Account, &u.PasswordHash, &u.Nickname, &u.Role, &u.Status, &u.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *PostgresUsersRepo) CreateUser(ctx context.Context, u *domain.User) error {
	if u.Account == "" {
		return fmt.Errorf("account is required")
	}
	if !domain.ValidRole(u.Role) {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	if u.UserID == "" {
		u.UserID = uuid.New().String()
	}
	if u.Status == "" {
		u.Status = "active"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (user_id, account, password_hash, nickname, role, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.UserID, u.Account, u.PasswordHash, u.Nickname, u.Role, u.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *PostgresUsersRepo) UpdateUser(ctx context.Context, userID string, payload map[string]any) error {
	set := []string{}
	args := []any{userID}
	argN := 2
	add := func(col string, v any) {
		set = append(set, fmt.Sprintf("%s = $%d", col, argN))
		args = append(args, v)
		argN++
	}
	if v, ok := payload["nickname"]; ok {
		add("nickname", v)
	}
	if v, ok := payload["role"].(string); ok {
		if !domain.ValidRole(v) {
			return fmt.Errorf("invalid role: %s", v)
		}
		add("role", v)
	}
	if v, ok := payload["status"]; ok {
		add("status", v)
	}
	if v, ok := payload["password_hash"]; ok {
		add("password_hash", v)
	}
	if len(set) == 0 {
		return nil
	}
	q := "UPDATE users SET " + strings.Join(set, ", ") + " WHERE user_id = $1"
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUsersRepo) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
