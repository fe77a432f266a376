// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/sendhawk/bulkmail-backend/internal/errors"
	"github.com/sendhawk/bulkmail-backend/internal/model"
	"github.com/sendhawk/bulkmail-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

type campaignBody struct {
	Name          string `json:"name"`
	FromEmail     string `json:"from_email"`
	FromName      string `json:"from_name"`
	Subject       string `json:"subject"`
	TemplateHTML  string `json:"template_html"`
	ABEnabled     bool   `json:"ab_enabled"`
	// Pointer so an explicit 0 (everyone on variant B) is distinguishable
	// from the field being absent.
	SplitRatio    *int   `json:"split_ratio"`
	SubjectB      string `json:"subject_b"`
	TemplateHTMLB string `json:"template_html_b"`
}

func (b campaignBody) toModel() *model.Campaign {
	split := 50
	if b.SplitRatio != nil {
		split = *b.SplitRatio
	}
	return &model.Campaign{
		Name:          b.Name,
		FromEmail:     b.FromEmail,
		FromName:      b.FromName,
		Subject:       b.Subject,
		TemplateHTML:  b.TemplateHTML,
		ABEnabled:     b.ABEnabled,
		SplitRatio:    split,
		SubjectB:      b.SubjectB,
		TemplateHTMLB: b.TemplateHTMLB,
	}
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body campaignBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(body.toModel())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body campaignBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign := body.toModel()
	campaign.ID = id
	if body.SplitRatio == nil {
		current, err := c.CampaignService.GetCampaign(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		// Omitting the field keeps the stored ratio instead of resetting it.
		campaign.SplitRatio = current.SplitRatio
	}
	updated, err := c.CampaignService.UpdateCampaign(campaign)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	result, err := c.CampaignService.RequestSend(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, result)
}

func (c *CampaignController) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		ScheduledAt string `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339, body.ScheduledAt)
	if err != nil {
		http.Error(w, "scheduled_at must be RFC3339", http.StatusBadRequest)
		return
	}

	if err := c.CampaignService.ScheduleCampaign(id, at); err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id":  id,
		"status":       "scheduled",
		"scheduled_at": at,
	})
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.statusFlip(w, r, c.CampaignService.PauseCampaign, "paused")
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c.statusFlip(w, r, c.CampaignService.ResumeCampaign, "sending")
}

func (c *CampaignController) statusFlip(w http.ResponseWriter, r *http.Request, op func(int) error, status string) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	if err := op(id); err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": id,
		"status":      status,
	})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		SubscriberID     int     `json:"subscriber_id"`
		OverrideTemplate *string `json:"override_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rendered, err := c.CampaignService.RenderPreview(id, body.SubscriberID, body.OverrideTemplate)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rendered_message": rendered,
		"subscriber_id":    body.SubscriberID,
	})
}

// ====================== helpers ======================

func urlID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	var badState *appErrors.ErrInvalidCampaignState
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &badState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
