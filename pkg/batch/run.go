package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// claim is the immutable slice of a task a worker goroutine needs.
type claim struct {
	taskID  string
	text    string
	kind    core.Kind
	options core.RenderOptions
	label   string
}

// run drains a job's pending tasks through a semaphore sized to its
// concurrency limit, then finalizes the job.
func (s *Scheduler) run(id string, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)

	ctx := s.baseCtx

	s.mu.Lock()
	job := s.jobs[id]
	limit := int64(job.Concurrency)
	settings := job.Settings
	s.mu.Unlock()
	if limit < 1 {
		limit = 1
	}

	stopLease := s.keepLease(ctx, id)

	sem := semaphore.NewWeighted(limit)
	var wg sync.WaitGroup
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		c, ok := s.claimNext(id)
		if !ok {
			sem.Release(1)
			break
		}
		if err := s.persist(ctx, id); err != nil {
			s.logger.Error("failed to persist task start", "job_id", id, "task_id", c.taskID, "error", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			s.runTask(ctx, id, c, settings)
		}()
	}
	wg.Wait()
	stopLease()

	if ctx.Err() != nil {
		// Shutdown: leave the job processing for Resume, with the lease released.
		s.mu.Lock()
		s.jobs[id].Owner = ""
		s.jobs[id].LeaseUntil = nil
		s.mu.Unlock()
		if err := s.persist(ctx, id); err != nil {
			s.logger.Error("failed to persist interrupted job", "job_id", id, "error", err)
		}
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		s.logger.Warn("batch job interrupted", "job_id", id)
		return
	}

	s.finalize(ctx, id)
}

// keepLease renews the job's lease until the returned stop func is called.
// stop waits for the renewing goroutine to exit.
func (s *Scheduler) keepLease(ctx context.Context, id string) (stop func()) {
	every := s.leaseTTL / 3
	if every < 10*time.Millisecond {
		every = 10 * time.Millisecond
	}
	quit := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			s.mu.Lock()
			until := s.now().UTC().Add(s.leaseTTL)
			s.jobs[id].LeaseUntil = &until
			s.mu.Unlock()
			if err := s.persist(ctx, id); err != nil {
				s.logger.Warn("failed to renew job lease", "job_id", id, "error", err)
			}
		}
	}()
	return func() {
		close(quit)
		<-exited
	}
}

// claimNext marks the first pending task processing. It returns false when
// the job was cancelled or nothing is left to start.
func (s *Scheduler) claimNext(id string) (claim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.jobs[id]
	if job.Status == core.JobCancelled {
		return claim{}, false
	}
	for _, t := range job.Tasks {
		if t.Status != core.TaskStatusPending {
			continue
		}
		started := s.now().UTC()
		t.Status = core.TaskStatusProcessing
		t.StartedAt = &started
		return claim{
			taskID:  t.ID,
			text:    t.InputText,
			kind:    t.Kind,
			options: t.Options,
			label:   t.Label(),
		}, true
	}
	return claim{}, false
}

// runTask executes one task with retries and records the outcome.
func (s *Scheduler) runTask(ctx context.Context, jobID string, c claim, settings core.JobSettings) {
	start := s.now()
	maxAttempts := settings.RetryAttempts + 1
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		s.setAttempts(jobID, c.taskID, attempt)
		s.Emit(&core.TaskStarted{JobID: jobID, TaskID: c.taskID, Kind: c.kind, Attempt: attempt, Timestamp: s.now()})

		res, err := s.attempt(ctx, c, settings.TaskTimeout)
		if err == nil {
			s.completeTask(ctx, jobID, c, res, attempt, s.now().Sub(start), settings)
			return
		}
		lastErr = err

		if ctx.Err() != nil {
			s.requeue(jobID, c.taskID)
			return
		}
		if !core.IsRetryable(err) || attempt == maxAttempts || s.isCancelled(jobID) {
			break
		}

		delay := taskRetryDelay(settings.RetryDelay, attempt)
		s.logger.Debug("retrying task", "job_id", jobID, "task_id", c.taskID, "attempt", attempt, "delay", delay, "error", err)
		s.Emit(&core.TaskRetrying{
			JobID:         jobID,
			TaskID:        c.taskID,
			Kind:          c.kind,
			Attempt:       attempt,
			Error:         err,
			NextAttemptAt: s.now().Add(delay),
			Timestamp:     s.now(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.requeue(jobID, c.taskID)
			return
		case <-timer.C:
		}
	}

	s.failTask(ctx, jobID, c, lastErr, attempts)
}

// attempt runs one generation raced against timeout.
func (s *Scheduler) attempt(ctx context.Context, c claim, timeout time.Duration) (*core.GenerationResult, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *core.GenerationResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				o = outcome{err: fmt.Errorf("panic: %v", r)}
			}
			ch <- o
		}()
		o.res, o.err = s.gen.Generate(actx, c.text, c.options, c.kind)
	}()

	select {
	case o := <-ch:
		if o.err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, &core.TimeoutError{After: timeout}
		}
		return o.res, o.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.TimeoutError{After: timeout}
	}
}

func (s *Scheduler) setAttempts(jobID, taskID string, n int) {
	s.mu.Lock()
	if t := s.jobs[jobID].Task(taskID); t != nil {
		t.Attempts = n
	}
	s.mu.Unlock()
}

func (s *Scheduler) isCancelled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobID].Status == core.JobCancelled
}

// requeue returns an interrupted task to pending.
func (s *Scheduler) requeue(jobID, taskID string) {
	s.mu.Lock()
	if t := s.jobs[jobID].Task(taskID); t != nil {
		t.Status = core.TaskStatusPending
		t.StartedAt = nil
	}
	s.mu.Unlock()
}

func (s *Scheduler) completeTask(ctx context.Context, jobID string, c claim, res *core.GenerationResult, attempts int, d time.Duration, settings core.JobSettings) {
	s.mu.Lock()
	job := s.jobs[jobID]
	t := job.Task(c.taskID)
	completed := s.now().UTC()
	t.Status = core.TaskStatusCompleted
	t.ResultID = res.ID
	t.Error = ""
	t.Attempts = attempts
	t.CompletedAt = &completed
	job.Results = append(job.Results, res)
	snapshot := job.Clone()
	taskCopy := *t
	s.mu.Unlock()

	if settings.SaveToHistory && s.history != nil {
		if err := s.history.AddToHistory(ctx, res); err != nil {
			s.logger.Warn("failed to save result to history", "job_id", jobID, "task_id", c.taskID, "error", err)
		}
	}
	if err := s.persist(ctx, jobID); err != nil {
		s.logger.Error("failed to persist task completion", "job_id", jobID, "task_id", c.taskID, "error", err)
	}

	s.Emit(&core.TaskCompleted{JobID: jobID, TaskID: c.taskID, Kind: c.kind, Attempts: attempts, Duration: d, Timestamp: s.now()})
	s.callTaskCompleteHooks(ctx, snapshot, &taskCopy)
}

func (s *Scheduler) failTask(ctx context.Context, jobID string, c claim, err error, attempts int) {
	msg := security.SanitizeErrorMessage(err.Error())

	s.mu.Lock()
	job := s.jobs[jobID]
	t := job.Task(c.taskID)
	completed := s.now().UTC()
	t.Status = core.TaskStatusFailed
	t.Error = msg
	t.Attempts = attempts
	t.CompletedAt = &completed
	job.Errors = append(job.Errors, c.label+": "+msg)
	snapshot := job.Clone()
	taskCopy := *t
	s.mu.Unlock()

	s.logger.Warn("task failed", "job_id", jobID, "task_id", c.taskID, "attempts", attempts, "error", err)
	if perr := s.persist(ctx, jobID); perr != nil {
		s.logger.Error("failed to persist task failure", "job_id", jobID, "task_id", c.taskID, "error", perr)
	}

	s.Emit(&core.TaskFailed{JobID: jobID, TaskID: c.taskID, Kind: c.kind, Attempts: attempts, Error: err, Timestamp: s.now()})
	s.callTaskFailHooks(ctx, snapshot, &taskCopy, err)
}

// finalize derives the terminal status once every task has settled.
func (s *Scheduler) finalize(ctx context.Context, id string) {
	s.mu.Lock()
	job := s.jobs[id]
	now := s.now().UTC()
	if job.Status != core.JobCancelled {
		if job.Counts().Completed > 0 {
			job.Status = core.JobCompleted
		} else {
			job.Status = core.JobFailed
		}
	}
	job.CompletedAt = &now
	job.Owner = ""
	job.LeaseUntil = nil
	delete(s.running, id)
	snapshot := job.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, id); err != nil {
		s.logger.Error("failed to persist finished job", "job_id", id, "error", err)
	} else {
		s.evict(id)
	}
	s.finished(ctx, snapshot)
}
