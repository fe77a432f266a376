package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrJobNotFound struct {
	JobID int
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("send job with ID %d not found", e.JobID)
}

func NewJobNotFound(id int) error {
	return &ErrJobNotFound{JobID: id}
}

// ErrInvalidCampaignState rejects an operation the campaign status forbids.
type ErrInvalidCampaignState struct {
	CampaignID int
	Status     string
}

func (e *ErrInvalidCampaignState) Error() string {
	return fmt.Sprintf("campaign %d cannot be processed in status: %s", e.CampaignID, e.Status)
}

func NewInvalidCampaignState(id int, status string) error {
	return &ErrInvalidCampaignState{CampaignID: id, Status: status}
}

// ErrLeaseLost means a worker tried to finish a job it no longer holds,
// typically because stale-lock recovery requeued it in the meantime.
type ErrLeaseLost struct {
	JobID    int
	WorkerID string
}

func (e *ErrLeaseLost) Error() string {
	return fmt.Sprintf("worker %s no longer holds the lease on job %d", e.WorkerID, e.JobID)
}

func NewLeaseLost(jobID int, workerID string) error {
	return &ErrLeaseLost{JobID: jobID, WorkerID: workerID}
}

// IsLeaseLost reports whether err indicates a lost lease.
func IsLeaseLost(err error) bool {
	var l *ErrLeaseLost
	return errors.As(err, &l)
}

// PermanentSendError marks a dispatch failure that must not be retried
// (invalid address, provider rejected the recipient outright).
type PermanentSendError struct {
	Reason string
}

func (e *PermanentSendError) Error() string {
	return "permanent send failure: " + e.Reason
}

func NewPermanentSend(reason string) error {
	return &PermanentSendError{Reason: reason}
}

// IsPermanentSend reports whether err is classified as non-retryable.
func IsPermanentSend(err error) bool {
	var p *PermanentSendError
	return errors.As(err, &p)
}
