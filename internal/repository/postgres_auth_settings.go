package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"coldwatch-data/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const authSettingsColumns = `
	settings_id,
	base_url,
	client_id,
	client_secret,
	access_token,
	refresh_token,
	access_token_expires_at,
	enabled,
	updated_at`

type PostgresAuthSettingsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresAuthSettingsRepo(db *sql.DB, logger *zap.Logger) *PostgresAuthSettingsRepo {
	return &PostgresAuthSettingsRepo{db: db, logger: logger}
}

func (r *PostgresAuthSettingsRepo) Get(ctx context.Context) (*domain.AuthSettings, error) {
	var s domain.AuthSettings
	err := r.db.QueryRowContext(ctx,
		`SELECT `+authSettingsColumns+` FROM milesight_auth_settings ORDER BY updated_at DESC LIMIT 1`,
	).Scan(
		&s.SettingsID,
		&s.BaseURL,
		&s.ClientID,
		&s.ClientSecret,
		&s.AccessToken,
		&s.RefreshToken,
		&s.AccessTokenExpiresAt,
		&s.Enabled,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert creates or patches the single settings row. Token fields are not
// writable here; UpdateTokens owns those.
func (r *PostgresAuthSettingsRepo) Upsert(ctx context.Context, payload map[string]any) (*domain.AuthSettings, error) {
	existing, err := r.Get(ctx)
	if err != nil && err != ErrNotFound {
		return nil, err
	}

	if existing == nil {
		baseURL, _ := payload["base_url"].(string)
		clientID, _ := payload["client_id"].(string)
		clientSecret, _ := payload["client_secret"].(string)
		enabled := true
		if v, ok := payload["enabled"].(bool); ok {
			enabled = v
		}
		if baseURL == "" || clientID == "" {
			return nil, fmt.Errorf("base_url and client_id are required")
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO milesight_auth_settings (settings_id, base_url, client_id, client_secret, enabled)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), baseURL, clientID, clientSecret, enabled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert auth settings: %w", err)
		}
		return r.Get(ctx)
	}

	set := []string{}
	args := []any{existing.SettingsID}
	argN := 2
	add := func(col string, v any) {
		set = append(set, fmt.Sprintf("%s = $%d", col, argN))
		args = append(args, v)
		argN++
	}
	if v, ok := payload["base_url"].(string); ok && v != "" {
		add("base_url", v)
	}
	if v, ok := payload["client_id"].(string); ok && v != "" {
		add("client_id", v)
	}
	if v, ok := payload["client_secret"].(string); ok && v != "" {
		add("client_secret", v)
	}
	if v, ok := payload["enabled"].(bool); ok {
		add("enabled", v)
	}
	if len(set) > 0 {
		set = append(set, "updated_at = NOW()")
		q := "UPDATE milesight_auth_settings SET " + strings.Join(set, ", ") + " WHERE settings_id = $1"
		if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
			return nil, fmt.Errorf("failed to update auth settings: %w", err)
		}
	}
	return r.Get(ctx)
}

// UpdateTokens persists a refreshed token pair. A nil refreshToken keeps the
// prior one; the vendor token endpoint does not always return it.
func (r *PostgresAuthSettingsRepo) UpdateTokens(ctx context.Context, accessToken string, refreshToken *string, expiresAt time.Time) error {
	if accessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	var err error
	if refreshToken != nil {
		_, err = r.db.ExecContext(ctx, `
			UPDATE milesight_auth_settings SET
				access_token = $1,
				refresh_token = $2,
				access_token_expires_at = $3,
				updated_at = NOW()`,
			accessToken, *refreshToken, expiresAt,
		)
	} else {
		_, err = r.db.ExecContext(ctx, `
			UPDATE milesight_auth_settings SET
				access_token = $1,
				access_token_expires_at = $2,
				updated_at = NOW()`,
			accessToken, expiresAt,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return nil
}
