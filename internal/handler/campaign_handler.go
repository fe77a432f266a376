// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/sendhawk/bulkmail-backend/internal/errors"
	"github.com/sendhawk/bulkmail-backend/internal/service"
)

// CampaignHandler serves the read-only progress views consumed by the admin
// UI.
type CampaignHandler struct {
	Service *service.CampaignService
}

// GetCampaignHandler returns a single campaign with its live progress counts.
func (h *CampaignHandler) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	details, err := h.Service.GetCampaignDetails(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}

// GetProgressHandler returns only the per-status counts for a campaign.
func (h *CampaignHandler) GetProgressHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	progress, err := h.Service.Progress(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign_id": id,
		"progress":    progress,
		"finished":    progress.Finished(),
		"outcome":     progress.Outcome(),
	})
}

func writeError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	if errors.As(err, &notFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusInternalServerError)
}
