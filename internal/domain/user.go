package domain

import (
	"database/sql"
	"time"
)

// User roles for the admin application.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// User application account (users table).
type User struct {
	UserID       string         `db:"user_id"`
	Account      string         `db:"account"`
	PasswordHash []byte         `db:"password_hash"`
	Nickname     sql.NullString `db:"nickname"`
	Role         string         `db:"role"`
	Status       string         `db:"status"` // active/disabled
	CreatedAt    time.Time      `db:"created_at"`
}

// ValidRole reports whether the role is one of the known application roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleManager || role == RoleEmployee
}

func (u *User) ToJSON() map[string]any {
	m := map[string]any{
		"user_id": u.UserID,
		"account": u.Account,
		"role":    u.Role,
		"status":  u.Status,
	}
	if u.Nickname.Valid {
		m["nickname"] = u.Nickname.String
	}
	return m
}
