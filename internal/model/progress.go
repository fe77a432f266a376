// internal/model/progress.go
package model

// CampaignProgress is the per-status job count breakdown for one campaign.
type CampaignProgress struct {
	QueuedCount     int `json:"queued_count"`
	ProcessingCount int `json:"processing_count"`
	SentCount       int `json:"sent_count"`
	FailedCount     int `json:"failed_count"`
	SkippedCount    int `json:"skipped_count"`
	TotalCount      int `json:"total_count"`
}

// Finished reports whether no live work remains.
func (p CampaignProgress) Finished() bool {
	return p.QueuedCount == 0 && p.ProcessingCount == 0
}

// Outcome is the completion notice the admin UI derives from the counts.
func (p CampaignProgress) Outcome() string {
	if !p.Finished() {
		return "in progress"
	}
	if p.FailedCount > 0 {
		return "finished with failures"
	}
	return "sent"
}
