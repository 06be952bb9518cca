// Package jobs tracks the lifecycle of conversion jobs in memory.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// DefaultRetention is how long a job stays reachable after creation.
const DefaultRetention = time.Hour

// transitions lists the allowed next states for every non-terminal state.
var transitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusExtracting:   {models.JobStatusSynthesizing, models.JobStatusFailed},
	models.JobStatusSynthesizing: {models.JobStatusSaving, models.JobStatusFailed},
	models.JobStatusSaving:       {models.JobStatusCompleted, models.JobStatusFailed},
}

func canTransition(from, to models.JobStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Tracker owns the state of every live job. All methods are safe for
// concurrent use: pollers read snapshots while each job's pipeline writes.
type Tracker struct {
	mu        sync.RWMutex
	jobs      map[string]*models.Job
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithRetention sets how long jobs stay reachable after creation.
func WithRetention(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

// WithLogger sets the tracker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		jobs:      make(map[string]*models.Job),
		retention: DefaultRetention,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create registers a job in the extracting state.
func (t *Tracker) Create(id string) (models.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.lookup(id); err == nil {
		return models.Job{}, fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}

	job := &models.Job{
		ID:        id,
		Status:    models.JobStatusExtracting,
		StartTime: t.now(),
	}
	t.jobs[id] = job

	t.logger.Info("job created", "job_id", id)
	return snapshot(job), nil
}

// Begin records the batch size and moves the job from extracting to synthesizing.
func (t *Tracker) Begin(id string, total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.lookup(id)
	if err != nil {
		return err
	}
	if err := transition(job, models.JobStatusSynthesizing); err != nil {
		return err
	}
	job.Total = total
	t.logger.Info("job synthesizing", "job_id", id, "total", total)
	return nil
}

// SetStatus moves a job to a non-terminal status. Terminal states are only
// reachable through Complete and Fail, which also set their result fields.
func (t *Tracker) SetStatus(id string, status models.JobStatus) error {
	if status.Terminal() {
		return fmt.Errorf("%w: use Complete or Fail to enter %s", ErrInvalidTransition, status)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.lookup(id)
	if err != nil {
		return err
	}
	if err := transition(job, status); err != nil {
		return err
	}
	t.logger.Debug("job status changed", "job_id", id, "status", status)
	return nil
}

// RecordProgress applies one progress event. Only valid while synthesizing;
// Completed may repeat but never decrease.
func (t *Tracker) RecordProgress(id string, p models.Progress) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.lookup(id)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusSynthesizing {
		return fmt.Errorf("%w: progress reported while %s", ErrInvalidTransition, job.Status)
	}
	if p.Completed < job.Completed {
		return fmt.Errorf("%w: %d after %d", ErrProgressRegressed, p.Completed, job.Completed)
	}
	if p.Total > 0 {
		job.Total = p.Total
	}
	job.Completed = min(p.Completed, job.Total)
	job.Current = p.Current
	if job.Total > 0 {
		job.Progress = job.Completed * 100 / job.Total
	}
	return nil
}

// Consume applies progress events from ch until it is closed. Rejected
// events are logged and dropped.
func (t *Tracker) Consume(id string, ch <-chan models.Progress) {
	for p := range ch {
		if err := t.RecordProgress(id, p); err != nil {
			t.logger.Warn("dropping progress event", "job_id", id, "completed", p.Completed, "error", err)
		}
	}
}

// Complete marks a saving job as completed with its library reference.
func (t *Tracker) Complete(id, libraryRef string, outcomes []models.Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.lookup(id)
	if err != nil {
		return err
	}
	if err := transition(job, models.JobStatusCompleted); err != nil {
		return err
	}

	end := t.now()
	job.EndTime = &end
	job.LibraryRef = libraryRef
	job.Outcomes = slices.Clone(outcomes)
	job.Current = ""
	job.Progress = 100

	t.logger.Info("job completed", "job_id", id, "library_id", libraryRef, "records", len(outcomes))
	return nil
}

// Fail moves any non-terminal job to failed. outcomes is nil when the job
// failed before synthesis.
func (t *Tracker) Fail(id, message string, outcomes []models.Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.lookup(id)
	if err != nil {
		return err
	}
	if err := transition(job, models.JobStatusFailed); err != nil {
		return err
	}

	end := t.now()
	job.EndTime = &end
	job.Error = message
	job.Outcomes = slices.Clone(outcomes)
	job.Current = ""

	t.logger.Error("job failed", "job_id", id, "error", message)
	return nil
}

// Get returns a snapshot of the job, or ErrNotFound if absent or expired.
func (t *Tracker) Get(id string) (models.Job, error) {
	t.mu.RLock()
	job, ok := t.jobs[id]
	if ok && !t.expired(job) {
		defer t.mu.RUnlock()
		return snapshot(job), nil
	}
	t.mu.RUnlock()

	if ok {
		t.mu.Lock()
		if job, found := t.jobs[id]; found && t.expired(job) {
			delete(t.jobs, id)
		}
		t.mu.Unlock()
	}
	return models.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns snapshots of all live jobs, most recent first.
func (t *Tracker) List() []models.Job {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := make([]models.Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		if !t.expired(job) {
			list = append(list, snapshot(job))
		}
	}
	slices.SortFunc(list, func(a, b models.Job) int {
		return b.StartTime.Compare(a.StartTime)
	})
	return list
}

// Sweep evicts every expired job and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, job := range t.jobs {
		if t.expired(job) {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired jobs every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.logger.Info("expired jobs evicted", "count", n)
			}
		}
	}
}

// lookup returns the live job, evicting it first if expired.
// Caller must hold the write lock.
func (t *Tracker) lookup(id string) (*models.Job, error) {
	job, ok := t.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.expired(job) {
		delete(t.jobs, id)
		t.logger.Debug("job expired", "job_id", id)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, nil
}

func (t *Tracker) expired(job *models.Job) bool {
	return t.now().Sub(job.StartTime) >= t.retention
}

func transition(job *models.Job, to models.JobStatus) error {
	if !canTransition(job.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
	}
	job.Status = to
	return nil
}

// snapshot returns a copy that shares no mutable state with job.
func snapshot(job *models.Job) models.Job {
	snap := *job
	if job.EndTime != nil {
		end := *job.EndTime
		snap.EndTime = &end
	}
	snap.Outcomes = slices.Clone(job.Outcomes)
	return snap
}
