package httpapi

import (
	"net/http"
	"time"

	"coldwatch-data/internal/service"

	"go.uber.org/zap"
)

type TelemetryHandler struct {
	telemetry service.TelemetryService
	export    service.ExportService
	logger    *zap.Logger
}

func NewTelemetryHandler(telemetry service.TelemetryService, export service.ExportService, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{telemetry: telemetry, export: export, logger: logger}
}

// parseTimeParam accepts RFC3339 or epoch milliseconds.
func parseTimeParam(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if ms := parseInt(s, 0); ms > 0 {
		t := time.UnixMilli(int64(ms))
		return &t
	}
	return nil
}

func (h *TelemetryHandler) ListTelemetry(w http.ResponseWriter, r *http.Request, deviceID string) {
	q := r.URL.Query()

	items, total, err := h.telemetry.ListByDevice(r.Context(), service.ListTelemetryRequest{
		DeviceID: deviceID,
		From:     parseTimeParam(q.Get("from")),
		To:       parseTimeParam(q.Get("to")),
		Page:     parseInt(q.Get("page"), 1),
		Size:     parseInt(q.Get("size"), 100),
	})
	if err != nil {
		h.logger.Error("Failed to list telemetry", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list telemetry"))
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

func (h *TelemetryHandler) LatestReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := h.telemetry.LatestReadings(r.Context())
	if err != nil {
		h.logger.Error("Failed to load latest readings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load latest readings"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(readings))
}

func (h *TelemetryHandler) ExportTelemetry(w http.ResponseWriter, r *http.Request, deviceID string) {
	q := r.URL.Query()

	file, err := h.export.ExportTelemetry(r.Context(), service.ExportTelemetryRequest{
		DeviceID: deviceID,
		From:     parseTimeParam(q.Get("from")),
		To:       parseTimeParam(q.Get("to")),
	})
	if err != nil {
		h.logger.Error("Telemetry export failed", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("export failed"))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Content)
}
