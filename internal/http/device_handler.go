package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"coldwatch-data/internal/repository"
	"coldwatch-data/internal/service"

	"go.uber.org/zap"
)

// DeviceHandler device cache reads plus vendor-proxied admin actions.
type DeviceHandler struct {
	devicesRepo repository.DevicesRepo
	sync        service.SyncService
	logger      *zap.Logger
}

func NewDeviceHandler(devicesRepo repository.DevicesRepo, sync service.SyncService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{devicesRepo: devicesRepo, sync: sync, logger: logger}
}

func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := map[string]any{
		"page": parseInt(q.Get("page"), 1),
		"size": parseInt(q.Get("size"), 20),
	}
	if v := q.Get("status"); v != "" {
		filters["last_status"] = v
	}
	if v := q.Get("search"); v != "" {
		filters["search_keyword"] = v
	}
	if v := q.Get("critical"); v != "" {
		filters["is_critical"] = v == "true"
	}

	items, total, err := h.devicesRepo.ListDevices(r.Context(), filters)
	if err != nil {
		h.logger.Error("Failed to list devices", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list devices"))
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

func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request, deviceID string) {
	device, err := h.devicesRepo.GetDevice(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("device not found"))
			return
		}
		h.logger.Error("Failed to load device", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load device"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(device.ToJSON()))
}

type updateDeviceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Tag         *string `json:"tag"`
}

func (h *DeviceHandler) UpdateDevice(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req updateDeviceRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	payload := map[string]any{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			writeJSON(w, http.StatusBadRequest, Fail("name cannot be empty"))
			return
		}
		payload["name"] = *req.Name
	}
	if req.Description != nil {
		payload["description"] = *req.Description
	}
	if req.Tag != nil {
		payload["tag"] = *req.Tag
	}
	if len(payload) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("no fields to update"))
		return
	}

	if err := h.sync.UpdateDevice(r.Context(), deviceID, payload); err != nil {
		h.logger.Error("Device update failed", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *DeviceHandler) DeleteDevice(w http.ResponseWriter, r *http.Request, deviceID string) {
	if err := h.sync.DeleteDevice(r.Context(), deviceID); err != nil {
		h.logger.Error("Device delete failed", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *DeviceHandler) SyncDevices(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.SyncDevices(r.Context())
	if err != nil {
		h.logger.Error("Device sync failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"total":    result.Total,
		"created":  result.Created,
		"updated":  result.Updated,
		"migrated": result.Migrated,
		"failed":   result.Failed,
		"errors":   result.Errors,
	}))
}

func (h *DeviceHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.TestConnection(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *DeviceHandler) TriggerFirmwareUpgrade(w http.ResponseWriter, r *http.Request, deviceID string) {
	if err := h.sync.TriggerFirmwareUpgrade(r.Context(), deviceID); err != nil {
		h.logger.Error("Firmware upgrade trigger failed", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
