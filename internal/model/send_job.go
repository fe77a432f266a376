// internal/model/send_job.go
package model

import "time"

// JobStatus is the lifecycle state of a send job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobSent       JobStatus = "sent"
	JobFailed     JobStatus = "failed"
	JobSkipped    JobStatus = "skipped"
)

// Terminal reports whether no further transition is possible for the status.
func (s JobStatus) Terminal() bool {
	return s == JobSent || s == JobFailed || s == JobSkipped
}

// Lease is the exclusive claim one worker holds on a job. The zero value
// means "unleased"; the repository maps it to the two nullable lock columns.
type Lease struct {
	WorkerID string    `json:"worker_id,omitempty"`
	Since    time.Time `json:"since,omitempty"`
}

// Held reports whether the lease is currently held by a worker.
func (l Lease) Held() bool {
	return l.WorkerID != ""
}

// Stale reports whether a held lease is older than ttl at time now.
func (l Lease) Stale(now time.Time, ttl time.Duration) bool {
	return l.Held() && now.Sub(l.Since) > ttl
}

// JobPayload is the rendered content frozen into a job at enqueue time, so
// the send is stable even if the campaign template changes afterwards.
type JobPayload struct {
	Subject     string            `json:"subject"`
	HTML        string            `json:"html"`
	Variant     string            `json:"variant"`
	MergeFields map[string]string `json:"merge_fields,omitempty"`
}

// SendJob is one email attempt for one (campaign, subscriber) pair.
type SendJob struct {
	ID           int       `db:"id" json:"id"`
	CampaignID   int       `db:"campaign_id" json:"campaign_id"`
	SubscriberID int       `db:"subscriber_id" json:"subscriber_id"`
	ToEmail      string    `db:"to_email" json:"to_email"`
	PayloadJSON  string    `db:"payload_json" json:"payload_json"`
	Status       JobStatus `db:"status" json:"status"`
	Attempts     int       `db:"attempts" json:"attempts"`
	MaxAttempts  int       `db:"max_attempts" json:"max_attempts"`
	LastError    string    `db:"last_error" json:"last_error,omitempty"`
	RunAt        time.Time `db:"run_at" json:"run_at"`
	Lease        Lease     `json:"lease,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
