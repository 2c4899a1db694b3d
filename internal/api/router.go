// internal/api/router.go
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tankguard-gateway/internal/auth"
)

// SetupDeviceRouter serves the signed device-facing API.
func SetupDeviceRouter(h *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/sensor-data", h.HandleSensorData)
	r.Post("/api/motor-status", h.HandleMotorStatus)
	r.Post("/api/heartbeat", h.HandleHeartbeat)
	r.Post("/api/system-alert", h.HandleSystemAlert)
	r.Get("/api/commands/poll", h.HandleCommandPoll)
	r.Post("/api/commands/ack", h.HandleCommandAck)
	r.Get("/ws/device", h.HandleDeviceWebSocket)

	return r
}

// SetupObserverRouter serves the JWT-guarded observer API and event stream.
func SetupObserverRouter(h *APIHandler, observers *auth.ObserverAuth) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/login", h.HandleLogin)

	r.Group(func(r chi.Router) {
		r.Use(observers.JWTMiddleware)
		r.Get("/ws", h.HandleObserverWebSocket)
		r.Get("/api/devices", h.HandleListDevices)
		r.Post("/api/devices", h.HandleRegisterDevice)
		r.Delete("/api/devices/{deviceID}", h.HandleDeactivateDevice)
		r.Post("/api/devices/{deviceID}/commands", h.HandleObserverCommand)
		r.Get("/api/alerts", h.HandleListAlerts)
	})

	return r
}
