package domain

import (
	"database/sql"
	"time"
)

// AuthSettings vendor API credentials and token state
// (milesight_auth_settings table, single row). The token manager is the
// only writer of the token fields.
type AuthSettings struct {
	SettingsID   string `db:"settings_id"`
	BaseURL      string `db:"base_url"`
	ClientID     string `db:"client_id"`
	ClientSecret string `db:"client_secret"`

	AccessToken          sql.NullString `db:"access_token"`
	RefreshToken         sql.NullString `db:"refresh_token"`
	AccessTokenExpiresAt sql.NullTime   `db:"access_token_expires_at"`

	Enabled   bool      `db:"enabled"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *AuthSettings) ToJSON() map[string]any {
	m := map[string]any{
		"settings_id": s.SettingsID,
		"base_url":    s.BaseURL,
		"client_id":   s.ClientID,
		"enabled":     s.Enabled,
		// client_secret and tokens are never echoed back
		"has_token": s.AccessToken.Valid,
	}
	if s.AccessTokenExpiresAt.Valid {
		m["access_token_expires_at"] = s.AccessTokenExpiresAt.Time
	}
	return m
}
