package milesight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/repository"

	"go.uber.org/zap"
)

// Configuration errors surfaced directly to the caller, never retried.
var (
	ErrNotConfigured = errors.New("milesight integration is not configured")
	ErrDisabled      = errors.New("milesight integration is disabled")
	ErrNoToken       = errors.New("no access token available, run a token refresh first")
	ErrTokenExpired  = errors.New("access token is expired")
)

// refreshBuffer the background job refreshes tokens expiring within this
// window. The interactive Session path stays strict: an expired token is an
// error there, never a silent refresh.
const refreshBuffer = 5 * time.Minute

// TokenManager owns the token fields of the auth settings row.
type TokenManager struct {
	repo   repository.AuthSettingsRepo
	client *Client
	logger *zap.Logger

	// Serializes concurrent refreshes; two racing refreshes would both
	// succeed but there is no reason to spend two token grants on it.
	mu sync.Mutex

	now func() time.Time
}

func NewTokenManager(repo repository.AuthSettingsRepo, client *Client, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		repo:   repo,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Session validates the stored settings for immediate interactive use and
// returns a usable base URL + bearer token. Fails fast on every
// configuration problem instead of blocking on a refresh.
func (m *TokenManager) Session(ctx context.Context) (*Session, error) {
	settings, err := m.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("failed to load auth settings: %w", err)
	}
	if !settings.Enabled {
		return nil, ErrDisabled
	}
	if !settings.AccessToken.Valid || settings.AccessToken.String == "" {
		return nil, ErrNoToken
	}
	if settings.AccessTokenExpiresAt.Valid && !settings.AccessTokenExpiresAt.Time.After(m.now()) {
		return nil, ErrTokenExpired
	}
	return &Session{
		BaseURL:     settings.BaseURL,
		AccessToken: settings.AccessToken.String,
	}, nil
}

// NeedsRefresh applies the background policy: refresh early, within the
// buffer window, rather than waiting for strict expiry.
func (m *TokenManager) NeedsRefresh(settings *domain.AuthSettings) bool {
	if !settings.AccessToken.Valid || settings.AccessToken.String == "" {
		return true
	}
	if !settings.AccessTokenExpiresAt.Valid {
		return true
	}
	return settings.AccessTokenExpiresAt.Time.Before(m.now().Add(refreshBuffer))
}

// RefreshIfNeeded is the scheduled entry point: checks the stored token and
// refreshes it when it is missing or expiring soon. A disabled or
// unconfigured integration is not an error here, just a no-op.
func (m *TokenManager) RefreshIfNeeded(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load auth settings: %w", err)
	}
	if !settings.Enabled {
		return nil
	}
	if !m.NeedsRefresh(settings) {
		return nil
	}
	return m.refresh(ctx, settings)
}

// Refresh forces a token grant regardless of remaining lifetime. Used by
// the admin "refresh now" action.
func (m *TokenManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotConfigured
		}
		return fmt.Errorf("failed to load auth settings: %w", err)
	}
	if !settings.Enabled {
		return ErrDisabled
	}
	return m.refresh(ctx, settings)
}

func (m *TokenManager) refresh(ctx context.Context, settings *domain.AuthSettings) error {
	token, err := m.client.RequestToken(ctx, settings.BaseURL, settings.ClientID, settings.ClientSecret)
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}

	expiresAt := m.now().Add(time.Duration(token.ExpiresIn) * time.Second)

	// The vendor does not always return a refresh token; keep the prior
	// one in that case.
	var refreshToken *string
	if token.RefreshToken != "" {
		refreshToken = &token.RefreshToken
	}

	if err := m.repo.UpdateTokens(ctx, token.AccessToken, refreshToken, expiresAt); err != nil {
		return fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	m.logger.Info("Milesight access token refreshed",
		zap.Time("expires_at", expiresAt),
	)
	return nil
}
