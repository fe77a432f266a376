// internal/service/campaign_service.go
package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/sendhawk/bulkmail-backend/internal/errors"
	"github.com/sendhawk/bulkmail-backend/internal/model"
	"github.com/sendhawk/bulkmail-backend/internal/queue"
	"github.com/sendhawk/bulkmail-backend/internal/repository"
	"github.com/sendhawk/bulkmail-backend/internal/variant"
)

type CampaignService struct {
	CampaignRepo    repository.CampaignRepositoryInterface
	SubscriberRepo  repository.SubscriberRepositoryInterface
	SuppressionRepo repository.SuppressionRepositoryInterface
	JobRepo         repository.JobRepositoryInterface
	Publisher       queue.Publisher
	MaxAttempts     int
	Log             zerolog.Logger
}

// RequestSendResult reports what a send request did.
type RequestSendResult struct {
	CampaignID int    `json:"campaign_id"`
	Status     string `json:"status"`
}

// EnqueueResult reports what the enqueue pipeline produced.
type EnqueueResult struct {
	CampaignID   int
	Audience     int
	Suppressed   int
	JobsInserted int
}

// CampaignDetails is a campaign plus its live progress counts.
type CampaignDetails struct {
	Campaign model.Campaign         `json:"campaign"`
	Progress model.CampaignProgress `json:"progress"`
	Outcome  string                 `json:"outcome"`
}

// ====================== Campaign CRUD ======================

func (s *CampaignService) CreateCampaign(c *model.Campaign) (*model.Campaign, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("campaign name cannot be empty")
	}
	if strings.TrimSpace(c.TemplateHTML) == "" {
		return nil, fmt.Errorf("campaign template cannot be empty")
	}
	if c.ABEnabled && strings.TrimSpace(c.TemplateHTMLB) == "" {
		return nil, fmt.Errorf("A/B campaign needs a variant B template")
	}
	c.Status = model.CampaignDraft
	c.SplitRatio = clampRatio(c.SplitRatio)

	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCampaign edits content fields. Once jobs exist the content is frozen
// into them, so edits are restricted to drafts.
func (s *CampaignService) UpdateCampaign(c *model.Campaign) (*model.Campaign, error) {
	current, err := s.CampaignRepo.GetByID(c.ID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.CampaignDraft {
		return nil, appErrors.NewInvalidCampaignState(c.ID, string(current.Status))
	}
	c.SplitRatio = clampRatio(c.SplitRatio)
	if err := s.CampaignRepo.Update(c); err != nil {
		return nil, err
	}
	return s.CampaignRepo.GetByID(c.ID)
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaign(id int) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(id)
}

func (s *CampaignService) GetCampaignDetails(id int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	progress, err := s.JobRepo.CampaignProgress(id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{
		Campaign: *campaign,
		Progress: progress,
		Outcome:  progress.Outcome(),
	}, nil
}

func (s *CampaignService) Progress(campaignID int) (model.CampaignProgress, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return model.CampaignProgress{}, err
	}
	return s.JobRepo.CampaignProgress(campaignID)
}

// ====================== Send / schedule / pause ======================

// RequestSend validates the campaign and hands the heavy enqueue work to the
// worker via the send queue.
func (s *CampaignService) RequestSend(campaignID int) (*RequestSendResult, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Sendable() {
		return nil, appErrors.NewInvalidCampaignState(campaignID, string(campaign.Status))
	}

	if err := s.Publisher.PublishSendRequest(campaignID); err != nil {
		return nil, fmt.Errorf("publish send request: %w", err)
	}

	return &RequestSendResult{CampaignID: campaignID, Status: "send requested"}, nil
}

func (s *CampaignService) ScheduleCampaign(campaignID int, at time.Time) error {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignDraft && campaign.Status != model.CampaignScheduled {
		return appErrors.NewInvalidCampaignState(campaignID, string(campaign.Status))
	}
	return s.CampaignRepo.Schedule(campaignID, at)
}

// PauseCampaign stops workers from dispatching this campaign's jobs. Jobs
// already leased complete or time out into the recovery path.
func (s *CampaignService) PauseCampaign(campaignID int) error {
	moved, err := s.CampaignRepo.TransitionStatus(campaignID, model.CampaignSending, model.CampaignPaused)
	if err != nil {
		return err
	}
	if !moved {
		campaign, err := s.CampaignRepo.GetByID(campaignID)
		if err != nil {
			return err
		}
		return appErrors.NewInvalidCampaignState(campaignID, string(campaign.Status))
	}
	return nil
}

func (s *CampaignService) ResumeCampaign(campaignID int) error {
	moved, err := s.CampaignRepo.TransitionStatus(campaignID, model.CampaignPaused, model.CampaignSending)
	if err != nil {
		return err
	}
	if !moved {
		campaign, err := s.CampaignRepo.GetByID(campaignID)
		if err != nil {
			return err
		}
		return appErrors.NewInvalidCampaignState(campaignID, string(campaign.Status))
	}
	return nil
}

// DispatchDueCampaigns publishes send requests for scheduled campaigns whose
// time has arrived. Runs from the worker's cron.
func (s *CampaignService) DispatchDueCampaigns(now time.Time) (int, error) {
	due, err := s.CampaignRepo.DueScheduled(now)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, c := range due {
		if err := s.Publisher.PublishSendRequest(c.ID); err != nil {
			s.Log.Error().Err(err).Int("campaign_id", c.ID).Msg("dispatch scheduled campaign failed")
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// ====================== Enqueue pipeline ======================

// EnqueueCampaignJobs runs the full enrollment: enumerate the audience,
// assign variants, drop suppressed addresses, freeze rendered content and
// insert queued jobs. The unique (campaign, subscriber) constraint makes the
// whole pipeline safe to re-run; a redelivered send request inserts nothing
// new.
func (s *CampaignService) EnqueueCampaignJobs(campaignID int) (*EnqueueResult, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Sendable() {
		return nil, appErrors.NewInvalidCampaignState(campaignID, string(campaign.Status))
	}

	audience, err := s.SubscriberRepo.ListSubscribed()
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}

	result := &EnqueueResult{CampaignID: campaignID, Audience: len(audience)}
	now := time.Now()

	jobs := make([]*model.SendJob, 0, len(audience))
	for i := range audience {
		sub := &audience[i]

		suppressed, err := s.SuppressionRepo.IsSuppressed(sub.Email)
		if err != nil {
			return nil, err
		}
		if suppressed {
			result.Suppressed++
			continue
		}

		payload, err := s.freezePayload(campaign, sub)
		if err != nil {
			s.Log.Warn().Err(err).Int("subscriber_id", sub.ID).Msg("failed to render payload, skipping recipient")
			continue
		}

		jobs = append(jobs, &model.SendJob{
			CampaignID:   campaignID,
			SubscriberID: sub.ID,
			ToEmail:      sub.Email,
			PayloadJSON:  payload,
			MaxAttempts:  s.MaxAttempts,
			RunAt:        now,
		})
	}

	inserted, err := s.JobRepo.EnqueueJobs(jobs)
	if err != nil {
		return nil, fmt.Errorf("enqueue jobs: %w", err)
	}
	result.JobsInserted = inserted

	if campaign.Status != model.CampaignSending {
		if err := s.CampaignRepo.UpdateStatus(campaignID, model.CampaignSending); err != nil {
			return result, err
		}
	}

	s.Log.Info().
		Int("campaign_id", campaignID).
		Int("audience", result.Audience).
		Int("suppressed", result.Suppressed).
		Int("inserted", inserted).
		Msg("campaign jobs enqueued")
	return result, nil
}

// freezePayload renders the variant-specific subject and body and snapshots
// them into the job so later template edits cannot change in-flight sends.
func (s *CampaignService) freezePayload(c *model.Campaign, sub *model.Subscriber) (string, error) {
	v := variant.Assign(c, sub.ID)
	fields := sub.MergeFields()

	payload := model.JobPayload{
		Subject:     RenderTemplate(c.SubjectFor(v), fields),
		HTML:        RenderTemplate(c.TemplateFor(v), fields),
		Variant:     v,
		MergeFields: fields,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// RenderPreview renders a campaign template for one subscriber without
// touching job state.
func (s *CampaignService) RenderPreview(campaignID, subscriberID int, overrideTemplate *string) (string, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return "", err
	}

	subscriber, err := s.SubscriberRepo.GetByID(subscriberID)
	if err != nil {
		return "", err
	}
	if subscriber == nil {
		return "", fmt.Errorf("subscriber not found")
	}

	v := variant.Assign(campaign, subscriberID)
	template := campaign.TemplateFor(v)
	if overrideTemplate != nil && strings.TrimSpace(*overrideTemplate) != "" {
		template = *overrideTemplate
	}
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("template cannot be empty")
	}

	return RenderTemplate(template, subscriber.MergeFields()), nil
}

func clampRatio(ratio int) int {
	if ratio < 0 {
		return 0
	}
	if ratio > 100 {
		return 100
	}
	return ratio
}
