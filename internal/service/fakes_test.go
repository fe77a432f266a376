package service_test

// In-memory fakes mirroring the repositories' conditional-update semantics,
// so worker and enqueue logic can be exercised without a database.

import (
	"context"
	"sort"
	"sync"
	"time"

	appErrors "github.com/sendhawk/bulkmail-backend/internal/errors"
	"github.com/sendhawk/bulkmail-backend/internal/model"
	"github.com/sendhawk/bulkmail-backend/internal/repository"
	"github.com/sendhawk/bulkmail-backend/internal/sender"
)

// ====================== job store ======================

type fakeJobStore struct {
	mu   sync.Mutex
	seq  int
	jobs map[int]*model.SendJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[int]*model.SendJob{}}
}

func (f *fakeJobStore) EnqueueJobs(jobs []*model.SendJob) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inserted := 0
	for _, j := range jobs {
		if f.findPairLocked(j.CampaignID, j.SubscriberID) != nil {
			continue
		}
		f.seq++
		stored := *j
		stored.ID = f.seq
		stored.Status = model.JobQueued
		stored.CreatedAt = time.Now()
		stored.UpdatedAt = stored.CreatedAt
		f.jobs[stored.ID] = &stored
		inserted++
	}
	return inserted, nil
}

func (f *fakeJobStore) findPairLocked(campaignID, subscriberID int) *model.SendJob {
	for _, j := range f.jobs {
		if j.CampaignID == campaignID && j.SubscriberID == subscriberID {
			return j
		}
	}
	return nil
}

func (f *fakeJobStore) GetJobByID(id int) (*model.SendJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, appErrors.NewJobNotFound(id)
	}
	copied := *j
	return &copied, nil
}

func (f *fakeJobStore) ClaimBatch(workerID string, batchSize int, now time.Time) ([]*model.SendJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	eligible := []*model.SendJob{}
	for _, j := range f.jobs {
		if j.Status == model.JobQueued && !j.RunAt.After(now) {
			eligible = append(eligible, j)
		}
	}
	sort.Slice(eligible, func(i, k int) bool {
		if !eligible[i].RunAt.Equal(eligible[k].RunAt) {
			return eligible[i].RunAt.Before(eligible[k].RunAt)
		}
		return eligible[i].ID < eligible[k].ID
	})
	if len(eligible) > batchSize {
		eligible = eligible[:batchSize]
	}

	claimed := make([]*model.SendJob, 0, len(eligible))
	for _, j := range eligible {
		j.Status = model.JobProcessing
		j.Lease = model.Lease{WorkerID: workerID, Since: now}
		copied := *j
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (f *fakeJobStore) RecoverStaleLocks(now time.Time, ttl time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	recovered := 0
	for _, j := range f.jobs {
		if j.Status == model.JobProcessing && j.Lease.Stale(now, ttl) {
			j.Status = model.JobQueued
			j.Lease = model.Lease{}
			j.LastError = repository.RecoveredLockError
			recovered++
		}
	}
	return recovered, nil
}

func (f *fakeJobStore) casLocked(id int, workerID string) (*model.SendJob, error) {
	j, ok := f.jobs[id]
	if !ok || j.Status != model.JobProcessing || j.Lease.WorkerID != workerID {
		return nil, appErrors.NewLeaseLost(id, workerID)
	}
	return j, nil
}

func (f *fakeJobStore) MarkSent(id int, workerID string) error {
	return f.terminal(id, workerID, model.JobSent, "")
}

func (f *fakeJobStore) MarkSkipped(id int, workerID, reason string) error {
	return f.terminal(id, workerID, model.JobSkipped, reason)
}

func (f *fakeJobStore) MarkFailed(id int, workerID, reason string) error {
	return f.terminal(id, workerID, model.JobFailed, reason)
}

func (f *fakeJobStore) terminal(id int, workerID string, status model.JobStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	j, err := f.casLocked(id, workerID)
	if err != nil {
		return err
	}
	j.Status = status
	j.LastError = reason
	j.Lease = model.Lease{}
	return nil
}

func (f *fakeJobStore) RequeueForRetry(id int, workerID, reason string, runAt time.Time) (model.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	j, err := f.casLocked(id, workerID)
	if err != nil {
		return "", err
	}
	j.Attempts++
	j.LastError = reason
	j.Lease = model.Lease{}
	if j.Attempts >= j.MaxAttempts {
		j.Status = model.JobFailed
	} else {
		j.Status = model.JobQueued
		j.RunAt = runAt
	}
	return j.Status, nil
}

func (f *fakeJobStore) ReleaseLease(id int, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	j, err := f.casLocked(id, workerID)
	if err != nil {
		return nil // already requeued or finished elsewhere
	}
	j.Status = model.JobQueued
	j.Lease = model.Lease{}
	return nil
}

func (f *fakeJobStore) CampaignProgress(campaignID int) (model.CampaignProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var p model.CampaignProgress
	for _, j := range f.jobs {
		if j.CampaignID != campaignID {
			continue
		}
		switch j.Status {
		case model.JobQueued:
			p.QueuedCount++
		case model.JobProcessing:
			p.ProcessingCount++
		case model.JobSent:
			p.SentCount++
		case model.JobFailed:
			p.FailedCount++
		case model.JobSkipped:
			p.SkippedCount++
		}
		p.TotalCount++
	}
	return p, nil
}

// seed inserts a job directly, bypassing the enqueue path.
func (f *fakeJobStore) seed(j model.SendJob) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	j.ID = f.seq
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	f.jobs[j.ID] = &j
	return j.ID
}

func (f *fakeJobStore) get(id int) model.SendJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.jobs[id]
}

var _ repository.JobRepositoryInterface = (*fakeJobStore)(nil)

// ====================== campaign repo ======================

type fakeCampaignRepo struct {
	mu        sync.Mutex
	seq       int
	campaigns map[int]*model.Campaign
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: map[int]*model.Campaign{}}
}

func (f *fakeCampaignRepo) Create(c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	c.ID = f.seq
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.CreatedAt = time.Now()
	stored := *c
	f.campaigns[c.ID] = &stored
	return nil
}

func (f *fakeCampaignRepo) Update(c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.campaigns[c.ID]
	if !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	c.Status = current.Status
	stored := *c
	f.campaigns[c.ID] = &stored
	return nil
}

func (f *fakeCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := []*model.Campaign{}
	for _, c := range f.campaigns {
		if status != "" && string(c.Status) != status {
			continue
		}
		copied := *c
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, k int) bool { return all[i].ID > all[k].ID })
	total := len(all)
	if offset >= len(all) {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeCampaignRepo) UpdateStatus(campaignID int, status model.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.Status = status
	return nil
}

func (f *fakeCampaignRepo) TransitionStatus(campaignID int, from, to model.CampaignStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (f *fakeCampaignRepo) Schedule(campaignID int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.Status = model.CampaignScheduled
	c.ScheduledAt = &at
	return nil
}

func (f *fakeCampaignRepo) DueScheduled(now time.Time) ([]*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	due := []*model.Campaign{}
	for _, c := range f.campaigns {
		if c.Status == model.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			copied := *c
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (f *fakeCampaignRepo) ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range f.campaigns {
		if c.Status == status {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

var _ repository.CampaignRepositoryInterface = (*fakeCampaignRepo)(nil)

// ====================== subscriber repo ======================

type fakeSubscriberRepo struct {
	subscribers []model.Subscriber
}

func (f *fakeSubscriberRepo) GetByID(id int) (*model.Subscriber, error) {
	for i := range f.subscribers {
		if f.subscribers[i].ID == id {
			copied := f.subscribers[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSubscriberRepo) ListSubscribed() ([]model.Subscriber, error) {
	out := []model.Subscriber{}
	for _, s := range f.subscribers {
		if s.Status == model.SubscriberSubscribed {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubscriberRepo) Create(s *model.Subscriber) error {
	s.ID = len(f.subscribers) + 1
	f.subscribers = append(f.subscribers, *s)
	return nil
}

var _ repository.SubscriberRepositoryInterface = (*fakeSubscriberRepo)(nil)

// ====================== suppression repo ======================

type fakeSuppressionRepo struct {
	mu      sync.Mutex
	blocked map[string]bool
}

func newFakeSuppressionRepo(emails ...string) *fakeSuppressionRepo {
	f := &fakeSuppressionRepo{blocked: map[string]bool{}}
	for _, e := range emails {
		f.blocked[e] = true
	}
	return f
}

func (f *fakeSuppressionRepo) IsSuppressed(email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked[email], nil
}

func (f *fakeSuppressionRepo) Add(entry *model.SuppressionEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[entry.Email] = true
	return nil
}

func (f *fakeSuppressionRepo) Remove(email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blocked, email)
	return nil
}

func (f *fakeSuppressionRepo) List(offset, limit int) ([]*model.SuppressionEntry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := []*model.SuppressionEntry{}
	for email := range f.blocked {
		entries = append(entries, &model.SuppressionEntry{Email: email, Reason: model.ReasonUnsubscribed})
	}
	return entries, len(entries), nil
}

var _ repository.SuppressionRepositoryInterface = (*fakeSuppressionRepo)(nil)

// ====================== publisher, sender, reserver ======================

type fakePublisher struct {
	mu        sync.Mutex
	published []int
}

func (f *fakePublisher) PublishSendRequest(campaignID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, campaignID)
	return nil
}

// scriptedSender returns the configured error per recipient, nil otherwise.
type scriptedSender struct {
	mu   sync.Mutex
	errs map[string]error
	sent []string
}

func (s *scriptedSender) Send(ctx context.Context, msg sender.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg.ToEmail)
	if s.errs != nil {
		return s.errs[msg.ToEmail]
	}
	return nil
}

// grantAll never limits.
type grantAll struct{}

func (grantAll) Reserve(n int) (int, error) { return n, nil }

// scriptedReserver replays a fixed sequence of grants, then grants all.
type scriptedReserver struct {
	mu     sync.Mutex
	grants []int
	calls  []int
}

func (s *scriptedReserver) Reserve(n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, n)
	if len(s.grants) == 0 {
		return n, nil
	}
	g := s.grants[0]
	s.grants = s.grants[1:]
	if g > n {
		g = n
	}
	return g, nil
}
