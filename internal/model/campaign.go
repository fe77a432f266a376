// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignSent      CampaignStatus = "sent"
)

type Campaign struct {
	ID            int            `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	FromEmail     string         `db:"from_email" json:"from_email"`
	FromName      string         `db:"from_name" json:"from_name"`
	Subject       string         `db:"subject" json:"subject"`
	TemplateHTML  string         `db:"template_html" json:"template_html"`
	ABEnabled     bool           `db:"ab_enabled" json:"ab_enabled"`
	SplitRatio    int            `db:"split_ratio" json:"split_ratio"`
	SubjectB      string         `db:"subject_b" json:"subject_b,omitempty"`
	TemplateHTMLB string         `db:"template_html_b" json:"template_html_b,omitempty"`
	Status        CampaignStatus `db:"status" json:"status"`
	ScheduledAt   *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Sendable reports whether a send request is accepted in the current status.
func (c *Campaign) Sendable() bool {
	return c.Status == CampaignDraft || c.Status == CampaignScheduled || c.Status == CampaignSending
}

// SubjectFor returns the subject line for the given variant.
func (c *Campaign) SubjectFor(variant string) string {
	if variant == "B" && c.ABEnabled {
		return c.SubjectB
	}
	return c.Subject
}

// TemplateFor returns the HTML template for the given variant.
func (c *Campaign) TemplateFor(variant string) string {
	if variant == "B" && c.ABEnabled {
		return c.TemplateHTMLB
	}
	return c.TemplateHTML
}
