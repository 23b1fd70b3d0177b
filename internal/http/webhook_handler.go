package httpapi

import (
	"crypto/subtle"
	"net/http"

	"coldwatch-data/internal/service"

	"go.uber.org/zap"
)

// WebhookHandler receives push events from the vendor platform. The shared
// X-Webhook-Token header is verified before any body parsing.
type WebhookHandler struct {
	telemetry service.TelemetryService
	token     string
	logger    *zap.Logger
}

func NewWebhookHandler(telemetry service.TelemetryService, token string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{telemetry: telemetry, token: token, logger: logger}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if h.token == "" {
		// Refuse ingestion rather than accept unauthenticated pushes.
		h.logger.Error("Webhook called but no webhook token is configured")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	got := r.Header.Get("X-Webhook-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		h.logger.Warn("Webhook rejected, bad token", zap.String("remote", r.RemoteAddr))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event service.WebhookEvent
	if err := readBodyJSON(r, 1<<20, &event); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid webhook body"))
		return
	}

	result, err := h.telemetry.IngestWebhook(r.Context(), &event)
	if err != nil {
		h.logger.Error("Webhook ingest failed",
			zap.String("device_id", event.DeviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("ingest failed"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"event_id": result.EventID,
		"skipped":  result.Skipped,
	}))
}
