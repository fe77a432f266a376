package repository

import (
	"database/sql"
	"sort"
	"time"

	appErrors "github.com/sendhawk/bulkmail-backend/internal/errors"
	"github.com/sendhawk/bulkmail-backend/internal/model"
)

// RecoveredLockError is the last_error text written by stale-lock recovery.
const RecoveredLockError = "Recovered from stale lock"

// JobRepositoryInterface is the send-job store contract. Every state
// transition is a single conditional UPDATE keyed on the row's current
// status (and lease holder, where one exists) so that two workers can never
// double-process one job.
type JobRepositoryInterface interface {
	// EnqueueJobs inserts jobs as queued, skipping (campaign, subscriber)
	// pairs that already have a row. Returns the number actually inserted.
	EnqueueJobs(jobs []*model.SendJob) (int, error)
	GetJobByID(id int) (*model.SendJob, error)

	// ClaimBatch leases up to batchSize due queued jobs for workerID,
	// oldest run_at first, created_at as tie-break.
	ClaimBatch(workerID string, batchSize int, now time.Time) ([]*model.SendJob, error)

	// RecoverStaleLocks requeues processing jobs whose lease started before
	// now-ttl. Attempts are left untouched; a crash is not a failed attempt.
	RecoverStaleLocks(now time.Time, ttl time.Duration) (int, error)

	// Outcome transitions; all require the caller to still hold the lease.
	MarkSent(id int, workerID string) error
	MarkSkipped(id int, workerID, reason string) error
	MarkFailed(id int, workerID, reason string) error
	// RequeueForRetry counts a transient failure: attempts+1, then either
	// back to queued at runAt or terminal failed once attempts reach the
	// ceiling. Returns the resulting status.
	RequeueForRetry(id int, workerID, reason string, runAt time.Time) (model.JobStatus, error)
	// ReleaseLease puts a leased job back to queued without touching
	// attempts (rate-limited or paused-campaign batches).
	ReleaseLease(id int, workerID string) error

	CampaignProgress(campaignID int) (model.CampaignProgress, error)
}

type JobRepository struct {
	DB *sql.DB
}

const jobColumns = `id, campaign_id, subscriber_id, to_email, payload_json, status,
	attempts, max_attempts, last_error, run_at, locked_at, locked_by, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*model.SendJob, error) {
	var (
		j        model.SendJob
		lockedAt sql.NullTime
		lockedBy sql.NullString
	)
	err := row.Scan(
		&j.ID, &j.CampaignID, &j.SubscriberID, &j.ToEmail, &j.PayloadJSON, &j.Status,
		&j.Attempts, &j.MaxAttempts, &j.LastError, &j.RunAt, &lockedAt, &lockedBy,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lockedAt.Valid && lockedBy.Valid {
		j.Lease = model.Lease{WorkerID: lockedBy.String, Since: lockedAt.Time}
	}
	return &j, nil
}

// ====================== Enqueue / load ======================

func (r *JobRepository) EnqueueJobs(jobs []*model.SendJob) (int, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO send_jobs
			(campaign_id, subscriber_id, to_email, payload_json, status, attempts, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'queued', 0, $5, $6, NOW(), NOW())
		ON CONFLICT (campaign_id, subscriber_id) DO NOTHING
	`
	inserted := 0
	for _, j := range jobs {
		res, err := tx.Exec(query, j.CampaignID, j.SubscriberID, j.ToEmail, j.PayloadJSON, j.MaxAttempts, j.RunAt)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *JobRepository) GetJobByID(id int) (*model.SendJob, error) {
	query := `SELECT ` + jobColumns + ` FROM send_jobs WHERE id=$1`
	j, err := scanJob(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewJobNotFound(id)
		}
		return nil, err
	}
	return j, nil
}

// ====================== Leasing ======================

// ClaimBatch selects and locks in one statement: the subquery picks due
// queued jobs, SKIP LOCKED keeps concurrent claimers off each other's rows,
// and the UPDATE flips them to processing under this worker's lease.
func (r *JobRepository) ClaimBatch(workerID string, batchSize int, now time.Time) ([]*model.SendJob, error) {
	query := `
		UPDATE send_jobs SET status='processing', locked_at=$2, locked_by=$1, updated_at=NOW()
		WHERE id IN (
			SELECT id FROM send_jobs
			WHERE status='queued' AND run_at <= $2
			ORDER BY run_at ASC, created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	rows, err := r.DB.Query(query, workerID, now, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*model.SendJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING has no ordering guarantee; restore the claim order.
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].RunAt.Equal(jobs[k].RunAt) {
			return jobs[i].RunAt.Before(jobs[k].RunAt)
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return jobs, nil
}

// ====================== Stale-lock recovery ======================

func (r *JobRepository) RecoverStaleLocks(now time.Time, ttl time.Duration) (int, error) {
	cutoff := now.Add(-ttl)
	query := `
		UPDATE send_jobs
		SET status='queued', locked_at=NULL, locked_by=NULL, last_error=$2, updated_at=NOW()
		WHERE status='processing' AND locked_at < $1
	`
	res, err := r.DB.Exec(query, cutoff, RecoveredLockError)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ====================== Outcomes ======================

func (r *JobRepository) terminal(id int, workerID string, status model.JobStatus, reason string) error {
	query := `
		UPDATE send_jobs
		SET status=$3, last_error=$4, locked_at=NULL, locked_by=NULL, updated_at=NOW()
		WHERE id=$1 AND status='processing' AND locked_by=$2
	`
	res, err := r.DB.Exec(query, id, workerID, status, reason)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewLeaseLost(id, workerID)
	}
	return nil
}

func (r *JobRepository) MarkSent(id int, workerID string) error {
	return r.terminal(id, workerID, model.JobSent, "")
}

func (r *JobRepository) MarkSkipped(id int, workerID, reason string) error {
	return r.terminal(id, workerID, model.JobSkipped, reason)
}

func (r *JobRepository) MarkFailed(id int, workerID, reason string) error {
	return r.terminal(id, workerID, model.JobFailed, reason)
}

// RequeueForRetry resolves retry-vs-exhausted inside the statement so the
// attempts check and the transition cannot race.
func (r *JobRepository) RequeueForRetry(id int, workerID, reason string, runAt time.Time) (model.JobStatus, error) {
	query := `
		UPDATE send_jobs
		SET attempts = attempts + 1,
		    last_error = $3,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'queued' END,
		    run_at = CASE WHEN attempts + 1 >= max_attempts THEN run_at ELSE $4 END,
		    locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE id=$1 AND status='processing' AND locked_by=$2
		RETURNING status
	`
	var status model.JobStatus
	err := r.DB.QueryRow(query, id, workerID, reason, runAt).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", appErrors.NewLeaseLost(id, workerID)
		}
		return "", err
	}
	return status, nil
}

func (r *JobRepository) ReleaseLease(id int, workerID string) error {
	query := `
		UPDATE send_jobs
		SET status='queued', locked_at=NULL, locked_by=NULL, updated_at=NOW()
		WHERE id=$1 AND status='processing' AND locked_by=$2
	`
	_, err := r.DB.Exec(query, id, workerID)
	return err
}

// ====================== Progress ======================

func (r *JobRepository) CampaignProgress(campaignID int) (model.CampaignProgress, error) {
	query := `SELECT status, COUNT(*) FROM send_jobs WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return model.CampaignProgress{}, err
	}
	defer rows.Close()

	var p model.CampaignProgress
	for rows.Next() {
		var status model.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return model.CampaignProgress{}, err
		}
		switch status {
		case model.JobQueued:
			p.QueuedCount = count
		case model.JobProcessing:
			p.ProcessingCount = count
		case model.JobSent:
			p.SentCount = count
		case model.JobFailed:
			p.FailedCount = count
		case model.JobSkipped:
			p.SkippedCount = count
		}
		p.TotalCount += count
	}
	if err := rows.Err(); err != nil {
		return model.CampaignProgress{}, err
	}
	return p, nil
}

var _ JobRepositoryInterface = (*JobRepository)(nil)
