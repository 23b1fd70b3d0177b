package httpapi

import (
	"database/sql"
	"errors"
	"net/http"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/repository"
	"coldwatch-data/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CriticalDeviceHandler struct {
	monitor service.MonitorService
	logger  *zap.Logger
}

func NewCriticalDeviceHandler(monitor service.MonitorService, logger *zap.Logger) *CriticalDeviceHandler {
	return &CriticalDeviceHandler{monitor: monitor, logger: logger}
}

func (h *CriticalDeviceHandler) ListWatchList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.monitor.ListWatchList(r.Context())
	if err != nil {
		h.logger.Error("Failed to list watch list", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list watch list"))
		return
	}
	list := make([]map[string]any, 0, len(entries))
	for i := range entries {
		list = append(list, entries[i].ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(list))
}

type addWatchEntryRequest struct {
	Label        string `json:"label"`
	SerialNumber string `json:"serial_number"`
	DevEUI       string `json:"dev_eui"`
}

func (h *CriticalDeviceHandler) AddWatchEntry(w http.ResponseWriter, r *http.Request) {
	var req addWatchEntryRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	entry := &domain.CriticalDevice{
		EntryID: uuid.NewString(),
		Label:   req.Label,
	}
	if req.SerialNumber != "" {
		entry.SerialNumber = sql.NullString{String: req.SerialNumber, Valid: true}
	}
	if req.DevEUI != "" {
		entry.DevEUI = sql.NullString{String: req.DevEUI, Valid: true}
	}

	if err := h.monitor.AddToWatchList(r.Context(), entry); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(entry.ToJSON()))
}

func (h *CriticalDeviceHandler) RemoveWatchEntry(w http.ResponseWriter, r *http.Request, entryID string) {
	if err := h.monitor.RemoveFromWatchList(r.Context(), entryID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("watch-list entry not found"))
			return
		}
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

// RunCheck triggers one sweep outside the schedule.
func (h *CriticalDeviceHandler) RunCheck(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.CheckCriticalDevices(r.Context())
	if err != nil {
		h.logger.Error("Manual critical device check failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"checked":    report.Checked,
		"stale":      report.Stale,
		"alerted":    report.Alerted,
		"recovered":  report.Recovered,
		"backfilled": report.Backfilled,
		"errors":     report.Errors,
	}))
}
