// internal/service/worker.go
package service

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sendhawk/bulkmail-backend/internal/config"
	appErrors "github.com/sendhawk/bulkmail-backend/internal/errors"
	"github.com/sendhawk/bulkmail-backend/internal/model"
	"github.com/sendhawk/bulkmail-backend/internal/repository"
	"github.com/sendhawk/bulkmail-backend/internal/sender"
)

// Reserver hands out global send permits.
type Reserver interface {
	Reserve(n int) (int, error)
}

// SendWorker drains the job queue: claim a batch under this worker's lease,
// re-check suppression, pass the rate gate and dispatch. Any number of
// workers can run in parallel; all coordination goes through the job store's
// conditional updates.
type SendWorker struct {
	ID           string
	Jobs         repository.JobRepositoryInterface
	Campaigns    repository.CampaignRepositoryInterface
	Suppressions repository.SuppressionRepositoryInterface
	Limiter      Reserver
	Sender       sender.Sender
	// Pacer smooths dispatch inside a granted batch; may be nil.
	Pacer *rate.Limiter
	Cfg   config.WorkerConfig
	Log   zerolog.Logger
}

// NewWorkerID builds a lease-holder identity unique per process.
func NewWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// RunTick processes one batch. Returns the number of jobs brought to an
// outcome this tick. An error is infrastructure trouble; the caller just
// waits for the next tick.
func (w *SendWorker) RunTick(ctx context.Context, now time.Time) (int, error) {
	jobs, err := w.Jobs.ClaimBatch(w.ID, w.Cfg.BatchSize, now)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	campaigns := map[int]*model.Campaign{}
	processed := 0
	granted := 0

	for i, job := range jobs {
		select {
		case <-ctx.Done():
			w.releaseAll(jobs[i:])
			return processed, ctx.Err()
		default:
		}

		campaign, ok := campaigns[job.CampaignID]
		if !ok {
			campaign, err = w.Campaigns.GetByID(job.CampaignID)
			if err != nil {
				w.release(job)
				w.Log.Error().Err(err).Int("job_id", job.ID).Msg("load campaign failed, lease released")
				continue
			}
			campaigns[job.CampaignID] = campaign
		}

		// Pause (or any non-sending state) stops dispatch; the job goes
		// back to queued untouched.
		if campaign.Status != model.CampaignSending {
			w.release(job)
			continue
		}

		suppressed, err := w.Suppressions.IsSuppressed(job.ToEmail)
		if err != nil {
			w.release(job)
			w.Log.Error().Err(err).Int("job_id", job.ID).Msg("suppression check failed, lease released")
			continue
		}
		if suppressed {
			if err := w.Jobs.MarkSkipped(job.ID, w.ID, "recipient suppressed"); err != nil {
				w.logOutcomeError(job, err)
			}
			processed++
			continue
		}

		if granted == 0 {
			granted, err = w.Limiter.Reserve(len(jobs) - i)
			if err != nil {
				w.releaseAll(jobs[i:])
				return processed, err
			}
			if granted == 0 {
				// Ceilings exhausted. Release the leases and let the next
				// tick retry; a zero grant is backpressure, not a failure.
				w.releaseAll(jobs[i:])
				w.Log.Debug().Int("remaining", len(jobs)-i).Msg("rate limited, batch released")
				return processed, nil
			}
		}
		granted--

		if w.Pacer != nil {
			if err := w.Pacer.Wait(ctx); err != nil {
				w.releaseAll(jobs[i:])
				return processed, err
			}
		}

		w.dispatch(ctx, job, campaign, now)
		processed++
	}

	return processed, nil
}

func (w *SendWorker) dispatch(ctx context.Context, job *model.SendJob, campaign *model.Campaign, now time.Time) {
	var payload model.JobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		// Unparseable payload can never send; terminal.
		if err := w.Jobs.MarkFailed(job.ID, w.ID, "corrupt payload: "+err.Error()); err != nil {
			w.logOutcomeError(job, err)
		}
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.Cfg.SendTimeout)
	defer cancel()

	err := w.Sender.Send(sendCtx, sender.Message{
		FromEmail: campaign.FromEmail,
		FromName:  campaign.FromName,
		ToEmail:   job.ToEmail,
		Subject:   payload.Subject,
		HTML:      payload.HTML,
	})

	switch {
	case err == nil:
		if err := w.Jobs.MarkSent(job.ID, w.ID); err != nil {
			w.logOutcomeError(job, err)
		}

	case appErrors.IsPermanentSend(err):
		if err := w.Jobs.MarkFailed(job.ID, w.ID, err.Error()); err != nil {
			w.logOutcomeError(job, err)
		}
		w.Log.Warn().Int("job_id", job.ID).Str("to", job.ToEmail).Err(err).Msg("permanent send failure")

	default:
		runAt := now.Add(w.retryDelay(job.Attempts))
		status, rqErr := w.Jobs.RequeueForRetry(job.ID, w.ID, err.Error(), runAt)
		if rqErr != nil {
			w.logOutcomeError(job, rqErr)
			return
		}
		if status == model.JobFailed {
			w.Log.Warn().Int("job_id", job.ID).Str("to", job.ToEmail).Err(err).Msg("retries exhausted, job failed")
		} else {
			w.Log.Info().Int("job_id", job.ID).Time("run_at", runAt).Err(err).Msg("transient send failure, requeued")
		}
	}
}

// retryDelay doubles per attempt from the configured base, capped at an hour.
func (w *SendWorker) retryDelay(attempts int) time.Duration {
	delay := w.Cfg.RetryBaseDelay
	if delay <= 0 {
		delay = time.Minute
	}
	for i := 0; i < attempts && delay < time.Hour; i++ {
		delay *= 2
	}
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

func (w *SendWorker) release(job *model.SendJob) {
	if err := w.Jobs.ReleaseLease(job.ID, w.ID); err != nil {
		w.Log.Error().Err(err).Int("job_id", job.ID).Msg("release lease failed")
	}
}

func (w *SendWorker) releaseAll(jobs []*model.SendJob) {
	for _, job := range jobs {
		w.release(job)
	}
}

// logOutcomeError distinguishes a lost lease (the documented at-least-once
// window: recovery took the job back mid-send) from store trouble.
func (w *SendWorker) logOutcomeError(job *model.SendJob, err error) {
	if appErrors.IsLeaseLost(err) {
		w.Log.Warn().Int("job_id", job.ID).Msg("lease lost before outcome was recorded; job may send twice")
		return
	}
	w.Log.Error().Err(err).Int("job_id", job.ID).Msg("record job outcome failed")
}

// ====================== Periodic sweeps ======================

// RecoverStaleLocks requeues jobs whose lease outlived the TTL. Idempotent;
// safe on any schedule.
func (w *SendWorker) RecoverStaleLocks(now time.Time) (int, error) {
	n, err := w.Jobs.RecoverStaleLocks(now, w.Cfg.LockTTL())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.Log.Warn().Int("recovered", n).Msg("stale locks recovered")
	}
	return n, nil
}

// FinishDrainedCampaigns flips sending campaigns whose queue has drained to
// their terminal status.
func (w *SendWorker) FinishDrainedCampaigns() (int, error) {
	sending, err := w.Campaigns.ListByStatus(model.CampaignSending)
	if err != nil {
		return 0, err
	}

	finished := 0
	for _, c := range sending {
		progress, err := w.Jobs.CampaignProgress(c.ID)
		if err != nil {
			return finished, err
		}
		// A campaign with no jobs at all (entire audience suppressed at
		// enqueue) is drained too; it finishes as "sent".
		if !progress.Finished() {
			continue
		}
		moved, err := w.Campaigns.TransitionStatus(c.ID, model.CampaignSending, model.CampaignSent)
		if err != nil {
			return finished, err
		}
		if moved {
			finished++
			w.Log.Info().
				Int("campaign_id", c.ID).
				Int("sent", progress.SentCount).
				Int("failed", progress.FailedCount).
				Int("skipped", progress.SkippedCount).
				Str("outcome", progress.Outcome()).
				Msg("campaign finished")
		}
	}
	return finished, nil
}
