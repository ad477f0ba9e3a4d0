package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// OpportunityList is the response envelope of GET /api/opportunities.
type OpportunityList struct {
	Count         int                  `json:"count"`
	TS            float64              `json:"ts"`
	Opportunities []domain.Opportunity `json:"opportunities"`
}

// OpportunityHandler serves the latest published opportunities.
type OpportunityHandler struct {
	feed     LatestSource
	settings SettingsService
	now      func() time.Time
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(feed LatestSource, settings SettingsService) *OpportunityHandler {
	return &OpportunityHandler{feed: feed, settings: settings, now: time.Now}
}

// ListLatest returns the latest list restricted to the active symbols and
// exchanges.
// GET /api/opportunities
func (h *OpportunityHandler) ListLatest(w http.ResponseWriter, r *http.Request) {
	opps := h.settings.Snapshot().Filter(h.feed.Latest())
	writeJSON(w, http.StatusOK, OpportunityList{
		Count:         len(opps),
		TS:            UnixSeconds(h.now()),
		Opportunities: opps,
	})
}
