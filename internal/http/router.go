package httpapi

import (
	"net/http"
	"strings"

	"coldwatch-data/internal/domain"

	"go.uber.org/zap"
)

// Router uses the standard library ServeMux; path parameters are peeled off
// by the registration closures.
type Router struct {
	mux      *http.ServeMux
	sessions *SessionStore
	logger   *zap.Logger
}

func NewRouter(sessions *SessionStore, logger *zap.Logger) *Router {
	return &Router{
		mux:      http.NewServeMux(),
		sessions: sessions,
		logger:   logger,
	}
}

func (rt *Router) Handle(pattern string, h http.HandlerFunc) {
	rt.mux.HandleFunc(pattern, h)
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rt.mux.ServeHTTP(w, req)
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// RegisterWebhookRoutes vendor push ingestion, authenticated by shared
// token, not by session.
func (rt *Router) RegisterWebhookRoutes(h *WebhookHandler) {
	rt.Handle("/webhook/milesight", methodOnly(http.MethodPost, h.Receive))
}

func (rt *Router) RegisterAuthRoutes(h *AuthHandler) {
	rt.Handle("/admin/api/v1/login", methodOnly(http.MethodPost, h.Login))
	rt.Handle("/admin/api/v1/logout", methodOnly(http.MethodPost, h.Logout))
	rt.Handle("/admin/api/v1/me", rt.requireRole(domain.RoleEmployee, methodOnly(http.MethodGet, h.Me)))
}

func (rt *Router) RegisterDeviceRoutes(devices *DeviceHandler, telemetry *TelemetryHandler, alerts *AlertConfigHandler) {
	rt.Handle("/admin/api/v1/devices", rt.requireRole(domain.RoleEmployee,
		methodOnly(http.MethodGet, devices.ListDevices)))
	rt.Handle("/admin/api/v1/devices/sync", rt.requireRole(domain.RoleManager,
		methodOnly(http.MethodPost, devices.SyncDevices)))

	// /admin/api/v1/devices/{id} and its subresources.
	rt.Handle("/admin/api/v1/devices/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/devices/")
		deviceID, sub, _ := strings.Cut(rest, "/")
		if deviceID == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch {
		case sub == "" && r.Method == http.MethodGet:
			rt.requireRole(domain.RoleEmployee, func(w http.ResponseWriter, r *http.Request) {
				devices.GetDevice(w, r, deviceID)
			})(w, r)
		case sub == "" && r.Method == http.MethodPut:
			rt.requireRole(domain.RoleManager, func(w http.ResponseWriter, r *http.Request) {
				devices.UpdateDevice(w, r, deviceID)
			})(w, r)
		case sub == "" && r.Method == http.MethodDelete:
			rt.requireRole(domain.RoleAdmin, func(w http.ResponseWriter, r *http.Request) {
				devices.DeleteDevice(w, r, deviceID)
			})(w, r)
		case sub == "upgrade" && r.Method == http.MethodPost:
			rt.requireRole(domain.RoleAdmin, func(w http.ResponseWriter, r *http.Request) {
				devices.TriggerFirmwareUpgrade(w, r, deviceID)
			})(w, r)
		case sub == "telemetry" && r.Method == http.MethodGet:
			rt.requireRole(domain.RoleEmployee, func(w http.ResponseWriter, r *http.Request) {
				telemetry.ListTelemetry(w, r, deviceID)
			})(w, r)
		case sub == "telemetry/export" && r.Method == http.MethodGet:
			rt.requireRole(domain.RoleEmployee, func(w http.ResponseWriter, r *http.Request) {
				telemetry.ExportTelemetry(w, r, deviceID)
			})(w, r)
		case sub == "alert-configs" && r.Method == http.MethodGet:
			rt.requireRole(domain.RoleEmployee, func(w http.ResponseWriter, r *http.Request) {
				alerts.ListConfigs(w, r, deviceID)
			})(w, r)
		case sub == "alert-configs" && r.Method == http.MethodPut:
			rt.requireRole(domain.RoleManager, func(w http.ResponseWriter, r *http.Request) {
				alerts.SaveConfig(w, r, deviceID)
			})(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	rt.Handle("/admin/api/v1/alert-configs/", func(w http.ResponseWriter, r *http.Request) {
		configID := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/alert-configs/")
		if configID == "" || strings.Contains(configID, "/") || r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		rt.requireRole(domain.RoleManager, func(w http.ResponseWriter, r *http.Request) {
			alerts.DeleteConfig(w, r, configID)
		})(w, r)
	})

	rt.Handle("/admin/api/v1/latest-readings", rt.requireRole(domain.RoleEmployee,
		methodOnly(http.MethodGet, telemetry.LatestReadings)))
}

func (rt *Router) RegisterCriticalDeviceRoutes(h *CriticalDeviceHandler) {
	rt.Handle("/admin/api/v1/critical-devices", rt.requireRole(domain.RoleManager,
		func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				h.ListWatchList(w, r)
			case http.MethodPost:
				h.AddWatchEntry(w, r)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		}))
	rt.Handle("/admin/api/v1/critical-devices/check", rt.requireRole(domain.RoleManager,
		methodOnly(http.MethodPost, h.RunCheck)))
	rt.Handle("/admin/api/v1/critical-devices/", func(w http.ResponseWriter, r *http.Request) {
		entryID := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/critical-devices/")
		if entryID == "" || entryID == "check" || strings.Contains(entryID, "/") || r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		rt.requireRole(domain.RoleManager, func(w http.ResponseWriter, r *http.Request) {
			h.RemoveWatchEntry(w, r, entryID)
		})(w, r)
	})
}

func (rt *Router) RegisterMilesightRoutes(h *AuthSettingsHandler, devices *DeviceHandler) {
	rt.Handle("/admin/api/v1/milesight/settings", rt.requireRole(domain.RoleAdmin,
		func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				h.GetSettings(w, r)
			case http.MethodPut:
				h.SaveSettings(w, r)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		}))
	rt.Handle("/admin/api/v1/milesight/refresh-token", rt.requireRole(domain.RoleAdmin,
		methodOnly(http.MethodPost, h.RefreshToken)))
	rt.Handle("/admin/api/v1/milesight/test-connection", rt.requireRole(domain.RoleManager,
		methodOnly(http.MethodPost, devices.TestConnection)))
}

func (rt *Router) RegisterUserRoutes(h *UserHandler) {
	rt.Handle("/admin/api/v1/users", rt.requireRole(domain.RoleAdmin,
		func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				h.ListUsers(w, r)
			case http.MethodPost:
				h.CreateUser(w, r)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		}))
	rt.Handle("/admin/api/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/users/")
		if userID == "" || strings.Contains(userID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodPut:
			rt.requireRole(domain.RoleAdmin, func(w http.ResponseWriter, r *http.Request) {
				h.UpdateUser(w, r, userID)
			})(w, r)
		case http.MethodDelete:
			rt.requireRole(domain.RoleAdmin, func(w http.ResponseWriter, r *http.Request) {
				h.DeleteUser(w, r, userID)
			})(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// RegisterHealthRoute liveness probe, unauthenticated.
func (rt *Router) RegisterHealthRoute() {
	rt.Handle("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
