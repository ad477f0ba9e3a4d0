// Package handler implements the HTTP endpoints of the scanner API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/scanner"
)

// SettingsService reads and updates the runtime preferences. Both
// *scanner.Runtime and a standalone *scanner.Preferences satisfy it.
type SettingsService interface {
	Settings() scanner.Settings
	UpdateSettings(ctx context.Context, u scanner.SettingsUpdate) scanner.Settings
	Snapshot() scanner.Snapshot
}

// StatusProvider reports the scanner status.
type StatusProvider interface {
	Status() scanner.Status
}

// LatestSource returns the last published opportunity list.
type LatestSource interface {
	Latest() []domain.Opportunity
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// UnixSeconds renders t as fractional Unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
