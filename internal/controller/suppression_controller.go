// internal/controller/suppression_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sendhawk/bulkmail-backend/internal/model"
	"github.com/sendhawk/bulkmail-backend/internal/repository"
)

// SuppressionController is the intake for unsubscribe/bounce signals and
// manual reinstatement.
type SuppressionController struct {
	Repo repository.SuppressionRepositoryInterface
}

func (c *SuppressionController) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email  string `json:"email"`
		Reason string `json:"reason"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Email) == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	reason := model.SuppressionReason(body.Reason)
	if reason != model.ReasonUnsubscribed && reason != model.ReasonEmailInvalid {
		http.Error(w, "reason must be unsubscribed or email_invalid", http.StatusBadRequest)
		return
	}

	entry := &model.SuppressionEntry{Email: body.Email, Reason: reason, Source: body.Source}
	if err := c.Repo.Add(entry); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (c *SuppressionController) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}
	if err := c.Repo.Remove(email); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"email": email, "status": "reinstated"})
}

func (c *SuppressionController) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	entries, total, err := c.Repo.List((page-1)*pageSize, pageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": entries,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
		},
	})
}
