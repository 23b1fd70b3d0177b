package httpapi

import (
	"errors"
	"net/http"

	"coldwatch-data/internal/milesight"
	"coldwatch-data/internal/repository"

	"go.uber.org/zap"
)

// AuthSettingsHandler manages the vendor platform credentials.
type AuthSettingsHandler struct {
	settingsRepo repository.AuthSettingsRepo
	tokens       *milesight.TokenManager
	logger       *zap.Logger
}

func NewAuthSettingsHandler(settingsRepo repository.AuthSettingsRepo, tokens *milesight.TokenManager, logger *zap.Logger) *AuthSettingsHandler {
	return &AuthSettingsHandler{settingsRepo: settingsRepo, tokens: tokens, logger: logger}
}

func (h *AuthSettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsRepo.Get(r.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusOK, Ok[any](nil))
			return
		}
		h.logger.Error("Failed to load auth settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load settings"))
		return
	}
	// ToJSON never includes token or secret values.
	writeJSON(w, http.StatusOK, Ok(settings.ToJSON()))
}

type saveSettingsRequest struct {
	BaseURL      *string `json:"base_url"`
	ClientID     *string `json:"client_id"`
	ClientSecret *string `json:"client_secret"`
	Enabled      *bool   `json:"enabled"`
}

func (h *AuthSettingsHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req saveSettingsRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	payload := map[string]any{}
	if req.BaseURL != nil {
		payload["base_url"] = *req.BaseURL
	}
	if req.ClientID != nil {
		payload["client_id"] = *req.ClientID
	}
	if req.ClientSecret != nil && *req.ClientSecret != "" {
		payload["client_secret"] = *req.ClientSecret
	}
	if req.Enabled != nil {
		payload["enabled"] = *req.Enabled
	}
	if len(payload) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("no fields to update"))
		return
	}

	settings, err := h.settingsRepo.Upsert(r.Context(), payload)
	if err != nil {
		h.logger.Error("Failed to save auth settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to save settings"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(settings.ToJSON()))
}

// RefreshToken forces an immediate token grant.
func (h *AuthSettingsHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Refresh(r.Context()); err != nil {
		switch {
		case errors.Is(err, milesight.ErrNotConfigured), errors.Is(err, milesight.ErrDisabled):
			writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		default:
			h.logger.Error("Manual token refresh failed", zap.Error(err))
			writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
		}
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
