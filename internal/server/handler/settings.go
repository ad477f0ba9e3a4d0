package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbscanner/internal/scanner"
)

// maxSettingsBody bounds PUT /api/settings bodies.
const maxSettingsBody = 64 << 10

// SettingsHandler serves the runtime preferences.
type SettingsHandler struct {
	settings SettingsService
	logger   *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(settings SettingsService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger.With(slog.String("handler", "settings")),
	}
}

// GetSettings returns the current settings.
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Settings())
}

// UpdateSettings applies a partial update. Unknown keys are ignored and
// invalid values leave their field unchanged; malformed JSON is a 400.
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u scanner.SettingsUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody)).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings payload: "+err.Error())
		return
	}

	s := h.settings.UpdateSettings(r.Context(), u)
	h.logger.InfoContext(r.Context(), "settings updated",
		slog.Int("scan_interval_sec", s.ScanIntervalSec),
		slog.Int("active_exchanges", len(s.ActiveExchanges)),
		slog.Int("active_symbols", len(s.ActiveSymbols)),
	)
	writeJSON(w, http.StatusOK, s)
}
