package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// ErrSchedulerClosed is returned when starting work on a closed scheduler.
var ErrSchedulerClosed = errors.New("qrjobs: scheduler is closed")

// Generator produces one QR result. *generator.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, text string, opts core.RenderOptions, kind core.Kind) (*core.GenerationResult, error)
}

// HistoryRecorder persists successful results. *store.Store satisfies it.
type HistoryRecorder interface {
	AddToHistory(ctx context.Context, res *core.GenerationResult) error
}

// Scheduler creates, runs and tracks batch jobs.
type Scheduler struct {
	id      string
	gen     Generator
	repo    JobRepository
	history HistoryRecorder
	logger  *slog.Logger
	now     func() time.Time

	leaseTTL           time.Duration
	storageRetry       RetryConfig
	defaultConcurrency int
	defaultSettings    core.JobSettings

	// mu guards jobs, running and closed. Every job mutation happens under it.
	mu      sync.Mutex
	jobs    map[string]*core.BatchJob
	running map[string]chan struct{}
	closed  bool

	// persistMu orders snapshots so the last write always reflects the
	// latest state.
	persistMu sync.Mutex

	hookMu         sync.RWMutex
	onTaskComplete []func(context.Context, *core.BatchJob, *core.GenerationTask)
	onTaskFail     []func(context.Context, *core.BatchJob, *core.GenerationTask, error)
	onJobFinish    []func(context.Context, *core.BatchJob)
	eventSubs      []chan core.Event

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler that generates through gen and persists
// through repo.
func NewScheduler(gen Generator, repo JobRepository, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		id:                 uuid.New().String(),
		gen:                gen,
		repo:               repo,
		logger:             slog.Default(),
		now:                time.Now,
		leaseTTL:           DefaultLeaseTTL,
		storageRetry:       DefaultRetryConfig(),
		defaultConcurrency: DefaultConcurrency,
		defaultSettings:    DefaultJobSettings(),
		jobs:               make(map[string]*core.BatchJob),
		running:            make(map[string]chan struct{}),
		baseCtx:            ctx,
		cancel:             cancel,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// CreateJob validates specs, persists a pending job and returns its id.
func (s *Scheduler) CreateJob(ctx context.Context, name string, specs []TaskSpec, opts ...JobOption) (string, error) {
	if err := security.ValidateJobName(name); err != nil {
		return "", err
	}
	if len(specs) == 0 {
		return "", core.ErrEmptyBatch
	}
	if len(specs) > security.MaxTasksPerJob {
		return "", core.Validation("tasks", fmt.Sprintf("at most %d tasks per job", security.MaxTasksPerJob))
	}

	cfg := jobConfig{concurrency: s.defaultConcurrency, settings: s.defaultSettings}
	for _, opt := range opts {
		opt.applyJob(&cfg)
	}

	tasks := make([]*core.GenerationTask, len(specs))
	for i, spec := range specs {
		kind := spec.Kind
		if kind == "" {
			kind = core.KindText
		}
		if !kind.Valid() {
			return "", core.Validation(fmt.Sprintf("tasks[%d].type", i), "unknown kind "+string(kind))
		}
		if err := security.ValidateText(spec.Text); err != nil {
			return "", core.Validation(fmt.Sprintf("tasks[%d].text", i), err.Error())
		}
		tasks[i] = &core.GenerationTask{
			ID:        uuid.New().String(),
			InputText: spec.Text,
			Kind:      kind,
			Options:   spec.Options,
			Priority:  spec.Priority,
			Status:    core.TaskStatusPending,
		}
	}

	job := &core.BatchJob{
		ID:          uuid.New().String(),
		Name:        name,
		Tasks:       tasks,
		Status:      core.JobPending,
		Concurrency: cfg.concurrency,
		CreatedAt:   s.now().UTC(),
		Results:     []*core.GenerationResult{},
		Errors:      []string{},
		Settings:    cfg.settings,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	if err := s.persist(ctx, job.ID); err != nil {
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return "", err
	}
	s.logger.Info("batch job created", "job_id", job.ID, "name", name, "tasks", len(tasks))
	return job.ID, nil
}

// loadLocked returns the live job, reading it from the repository on first
// use. s.mu must be held.
func (s *Scheduler) loadLocked(ctx context.Context, id string) (*core.BatchJob, error) {
	if job, ok := s.jobs[id]; ok {
		return job, nil
	}
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	s.jobs[id] = job
	return job, nil
}

// StartJob moves a pending job to processing and runs it in the background.
func (s *Scheduler) StartJob(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	job, err := s.loadLocked(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if job.Status != core.JobPending {
		s.mu.Unlock()
		return core.InvalidState("start", job.Status)
	}
	started := s.now().UTC()
	leaseUntil := started.Add(s.leaseTTL)
	job.Status = core.JobProcessing
	job.StartedAt = &started
	job.CompletedAt = nil
	job.Owner = s.id
	job.LeaseUntil = &leaseUntil
	done := make(chan struct{})
	s.running[id] = done
	total := len(job.Tasks)
	name := job.Name
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.persist(ctx, id); err != nil {
		s.logger.Warn("failed to persist job start", "job_id", id, "error", err)
	}
	s.logger.Info("batch job started", "job_id", id, "tasks", total)
	s.Emit(&core.JobStarted{JobID: id, Name: name, Total: total, Timestamp: started})

	go s.run(id, done)
	return nil
}

// CancelJob stops a job from starting further tasks. Pending tasks are
// failed with reason "cancelled"; tasks already processing finish normally.
func (s *Scheduler) CancelJob(ctx context.Context, id string) error {
	s.mu.Lock()
	job, err := s.loadLocked(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if job.Status.Terminal() {
		s.mu.Unlock()
		return core.InvalidState("cancel", job.Status)
	}

	now := s.now().UTC()
	wasPending := job.Status == core.JobPending
	job.Status = core.JobCancelled
	for _, t := range job.Tasks {
		if t.Status != core.TaskStatusPending {
			continue
		}
		t.Status = core.TaskStatusFailed
		t.Error = "cancelled"
		completed := now
		t.CompletedAt = &completed
		job.Errors = append(job.Errors, t.Label()+": cancelled")
	}
	var snapshot *core.BatchJob
	if wasPending {
		job.CompletedAt = &now
		snapshot = job.Clone()
	}
	s.mu.Unlock()

	if err := s.persist(ctx, id); err != nil {
		return err
	}
	s.logger.Info("batch job cancelled", "job_id", id)

	// A running job reports its own finish once in-flight tasks drain.
	if snapshot != nil {
		s.evict(id)
		s.finished(ctx, snapshot)
	}
	return nil
}

// GetJob returns a snapshot of the job.
func (s *Scheduler) GetJob(ctx context.Context, id string) (*core.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// ListJobs returns every stored job, newest first, with live state for jobs
// this scheduler is tracking.
func (s *Scheduler) ListJobs(ctx context.Context) ([]*core.BatchJob, error) {
	stored, err := s.repo.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.BatchJob, len(stored))
	for i, job := range stored {
		if live, ok := s.jobs[job.ID]; ok {
			job = live.Clone()
		}
		out[i] = job
	}
	return out, nil
}

// DeleteJob removes a job that is not currently processing.
func (s *Scheduler) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	if job, ok := s.jobs[id]; ok && job.Status == core.JobProcessing {
		s.mu.Unlock()
		return core.InvalidState("delete", job.Status)
	}
	if _, running := s.running[id]; running {
		s.mu.Unlock()
		return core.InvalidState("delete", core.JobProcessing)
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	return s.repo.DeleteJob(ctx, id)
}

// OptimizeOrder sorts a pending job's tasks by priority, then by input length.
func (s *Scheduler) OptimizeOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	job, err := s.loadLocked(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if job.Status != core.JobPending {
		s.mu.Unlock()
		return core.InvalidState("reorder", job.Status)
	}
	sort.SliceStable(job.Tasks, func(i, j int) bool {
		a, b := job.Tasks[i], job.Tasks[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return utf8.RuneCountInString(a.InputText) < utf8.RuneCountInString(b.InputText)
	})
	s.mu.Unlock()

	return s.persist(ctx, id)
}

// RetryFailed resets the failed tasks of a finished job so it can be started
// again. It returns how many tasks were reset.
func (s *Scheduler) RetryFailed(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	job, err := s.loadLocked(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	if !job.Status.Terminal() {
		s.mu.Unlock()
		return 0, core.InvalidState("retry", job.Status)
	}

	reset := 0
	for _, t := range job.Tasks {
		if t.Status != core.TaskStatusFailed {
			continue
		}
		t.Status = core.TaskStatusPending
		t.Error = ""
		t.Attempts = 0
		t.StartedAt = nil
		t.CompletedAt = nil
		reset++
	}
	if reset == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	job.Status = core.JobPending
	job.Errors = []string{}
	job.CompletedAt = nil
	s.mu.Unlock()

	return reset, s.persist(ctx, id)
}

// Resume resets jobs left processing by an interrupted process back to
// pending, along with their processing tasks. Jobs whose owner still holds
// an unexpired lease are left alone. Callers restart the reset jobs with
// StartJob. It returns their ids.
func (s *Scheduler) Resume(ctx context.Context) ([]string, error) {
	stored, err := s.repo.ListJobs(ctx)
	if err != nil {
		return nil, err
	}

	var resumed []string
	for _, job := range stored {
		if job.Status != core.JobProcessing {
			continue
		}
		if job.LeaseHeld(s.id, s.now()) {
			s.logger.Debug("batch job still leased", "job_id", job.ID, "owner", job.Owner, "lease_until", job.LeaseUntil)
			continue
		}
		s.mu.Lock()
		if _, running := s.running[job.ID]; running {
			s.mu.Unlock()
			continue
		}
		job.Owner = ""
		job.LeaseUntil = nil
		for _, t := range job.Tasks {
			if t.Status == core.TaskStatusProcessing {
				t.Status = core.TaskStatusPending
				t.StartedAt = nil
			}
		}
		job.Status = core.JobPending
		s.jobs[job.ID] = job
		s.mu.Unlock()

		if err := s.persist(ctx, job.ID); err != nil {
			return resumed, err
		}
		s.logger.Info("batch job reset after interruption", "job_id", job.ID)
		resumed = append(resumed, job.ID)
	}
	return resumed, nil
}

// Wait blocks until the job is no longer running and returns its final state.
func (s *Scheduler) Wait(ctx context.Context, id string) (*core.BatchJob, error) {
	s.mu.Lock()
	done, running := s.running[id]
	s.mu.Unlock()

	if running {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.GetJob(ctx, id)
}

// Close stops accepting work, cancels in-flight tasks and waits for runs to
// exit. Interrupted jobs stay processing on disk so Resume can pick them up.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

// evict drops a finished job from memory once its final state is stored.
// Later reads go back to the repository.
func (s *Scheduler) evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.running[id]; running {
		return
	}
	if job, ok := s.jobs[id]; ok && job.Status.Terminal() {
		delete(s.jobs, id)
	}
}

// persist saves a snapshot of the live job, retrying transient failures.
func (s *Scheduler) persist(ctx context.Context, id string) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return core.ErrJobNotFound
	}
	snapshot := job.Clone()
	s.mu.Unlock()

	// Records must land even while the scheduler is shutting down.
	ctx = context.WithoutCancel(ctx)
	return retryWithBackoff(ctx, s.storageRetry, func() error {
		return s.repo.SaveJob(ctx, snapshot)
	})
}

func (s *Scheduler) finished(ctx context.Context, job *core.BatchJob) {
	counts := job.Counts()
	var d time.Duration
	if job.StartedAt != nil && job.CompletedAt != nil {
		d = job.CompletedAt.Sub(*job.StartedAt)
	}
	s.logger.Info("batch job finished",
		"job_id", job.ID,
		"status", job.Status,
		"completed", counts.Completed,
		"failed", counts.Failed,
		"duration", d,
	)
	s.Emit(&core.JobFinished{
		JobID:     job.ID,
		Status:    job.Status,
		Completed: counts.Completed,
		Failed:    counts.Failed,
		Duration:  d,
		Timestamp: s.now(),
	})
	s.callJobFinishHooks(ctx, job)
}
