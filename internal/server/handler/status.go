package handler

import (
	"net/http"
)

// StatusHandler serves the scanner status.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a StatusHandler. provider is nil when no scanner
// runs in this process.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// GetStatus responds with the runtime status document.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeJSON(w, http.StatusOK, map[string]any{"started": false})
		return
	}
	writeJSON(w, http.StatusOK, h.provider.Status())
}
