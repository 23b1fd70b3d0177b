package httpapi

import (
	"errors"
	"net/http"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/repository"
	"coldwatch-data/internal/service"

	"go.uber.org/zap"
)

type AlertConfigHandler struct {
	alerts service.AlertService
	logger *zap.Logger
}

func NewAlertConfigHandler(alerts service.AlertService, logger *zap.Logger) *AlertConfigHandler {
	return &AlertConfigHandler{alerts: alerts, logger: logger}
}

func (h *AlertConfigHandler) ListConfigs(w http.ResponseWriter, r *http.Request, deviceID string) {
	configs, err := h.alerts.ListConfigs(r.Context(), deviceID)
	if err != nil {
		h.logger.Error("Failed to list alert configs", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list alert configs"))
		return
	}
	list := make([]map[string]any, 0, len(configs))
	for i := range configs {
		list = append(list, configs[i].ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(list))
}

type saveAlertConfigRequest struct {
	SensorChannel   *string                 `json:"sensor_channel"`
	MinTemperature  *float64                `json:"min_temperature"`
	MaxTemperature  *float64                `json:"max_temperature"`
	Recipients      []domain.AlertRecipient `json:"recipients"`
	Enabled         *bool                   `json:"enabled"`
	CooldownSeconds int                     `json:"cooldown_seconds"`
	DeviceName      string                  `json:"device_name"`
}

func (h *AlertConfigHandler) SaveConfig(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req saveAlertConfigRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.MinTemperature == nil || req.MaxTemperature == nil {
		writeJSON(w, http.StatusBadRequest, Fail("min_temperature and max_temperature are required"))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	saved, err := h.alerts.SaveConfig(r.Context(), service.SaveAlertConfigRequest{
		DeviceID:        deviceID,
		DeviceName:      req.DeviceName,
		SensorChannel:   req.SensorChannel,
		MinTemperature:  *req.MinTemperature,
		MaxTemperature:  *req.MaxTemperature,
		Recipients:      req.Recipients,
		Enabled:         enabled,
		CooldownSeconds: req.CooldownSeconds,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(saved.ToJSON()))
}

func (h *AlertConfigHandler) DeleteConfig(w http.ResponseWriter, r *http.Request, configID string) {
	if err := h.alerts.DeleteConfig(r.Context(), configID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("alert config not found"))
			return
		}
		h.logger.Error("Failed to delete alert config", zap.String("config_id", configID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to delete alert config"))
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
