package handler

import (
	"net/http"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	settings   SettingsService
	brokerMode string
	embedded   bool
}

// NewHealthHandler creates a HealthHandler. embedded reports whether a
// scanner runs in this process.
func NewHealthHandler(settings SettingsService, brokerMode string, embedded bool) *HealthHandler {
	return &HealthHandler{settings: settings, brokerMode: brokerMode, embedded: embedded}
}

// HealthCheck responds with liveness and a summary of the active settings.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s := h.settings.Settings()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                 true,
		"scan_interval_sec":  s.ScanIntervalSec,
		"broker_mode":        h.brokerMode,
		"run_scanner_in_api": h.embedded,
		"symbols":            s.ActiveSymbols,
		"exchanges":          len(s.ActiveExchanges),
	})
}
