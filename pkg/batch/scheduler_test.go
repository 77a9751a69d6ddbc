package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/kv"
)

// fakeGenerator runs fn for each call and tracks concurrency.
type fakeGenerator struct {
	fn func(ctx context.Context, text string, call int) error

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (g *fakeGenerator) Generate(ctx context.Context, text string, opts core.RenderOptions, kind core.Kind) (*core.GenerationResult, error) {
	n := g.calls.Add(1)
	cur := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		prev := g.maxSeen.Load()
		if cur <= prev || g.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	if g.fn != nil {
		if err := g.fn(ctx, text, int(n)); err != nil {
			return nil, err
		}
	}
	return &core.GenerationResult{
		ID:         "res-" + text,
		SourceText: text,
		ImageData:  []byte("png"),
		MIMEType:   "image/png",
		CreatedAt:  time.Now().UTC(),
		Title:      text,
		Kind:       kind,
	}, nil
}

type recordingHistory struct {
	mu    sync.Mutex
	added []string
}

func (h *recordingHistory) AddToHistory(_ context.Context, r *core.GenerationResult) error {
	h.mu.Lock()
	h.added = append(h.added, r.ID)
	h.mu.Unlock()
	return nil
}

func newTestScheduler(t *testing.T, gen Generator, opts ...Option) (*Scheduler, *KVRepository) {
	t.Helper()
	repo := NewKVRepository(kv.NewMemory(0))
	s := NewScheduler(gen, repo, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, repo
}

func specs(texts ...string) []TaskSpec {
	out := make([]TaskSpec, len(texts))
	for i, text := range texts {
		out[i] = TaskSpec{Text: text, Kind: core.KindText}
	}
	return out
}

func runToCompletion(t *testing.T, s *Scheduler, id string) *core.BatchJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.StartJob(ctx, id))
	job, err := s.Wait(ctx, id)
	require.NoError(t, err)
	return job
}

func TestCreateJob_Validation(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeGenerator{})
	ctx := context.Background()

	_, err := s.CreateJob(ctx, "", specs("a"))
	assert.True(t, core.IsValidation(err))

	_, err = s.CreateJob(ctx, "empty", nil)
	assert.ErrorIs(t, err, core.ErrEmptyBatch)

	_, err = s.CreateJob(ctx, "bad text", specs("ok", ""))
	assert.True(t, core.IsValidation(err))

	_, err = s.CreateJob(ctx, "bad kind", []TaskSpec{{Text: "x", Kind: "nope"}})
	assert.True(t, core.IsValidation(err))
}

func TestCreateJob_PersistsPending(t *testing.T) {
	s, repo := newTestScheduler(t, &fakeGenerator{})
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "tabs", specs("a", "b"), WithConcurrency(50), WithRetryAttempts(-1), SaveToHistory(false))
	require.NoError(t, err)

	job, err := repo.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobPending, job.Status)
	assert.Equal(t, 10, job.Concurrency, "concurrency is clamped")
	assert.Equal(t, 0, job.Settings.RetryAttempts)
	assert.False(t, job.Settings.SaveToHistory)
	require.Len(t, job.Tasks, 2)
	assert.NotEqual(t, job.Tasks[0].ID, job.Tasks[1].ID)
	for _, task := range job.Tasks {
		assert.Equal(t, core.TaskStatusPending, task.Status)
	}
}

func TestRun_AllSucceed(t *testing.T) {
	hist := &recordingHistory{}
	s, repo := newTestScheduler(t, &fakeGenerator{}, WithHistory(hist))
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "ok", specs("a", "b", "c"))
	require.NoError(t, err)
	job := runToCompletion(t, s, id)

	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Len(t, job.Results, 3)
	assert.Empty(t, job.Errors)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	for _, task := range job.Tasks {
		assert.Equal(t, core.TaskStatusCompleted, task.Status)
		assert.Equal(t, "res-"+task.InputText, task.ResultID)
		assert.Equal(t, 1, task.Attempts)
	}
	assert.ElementsMatch(t, []string{"res-a", "res-b", "res-c"}, hist.added)

	stored, err := repo.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, stored.Status)
	assert.Len(t, stored.Results, 3)
}

func TestRun_SkipsHistoryWhenDisabled(t *testing.T) {
	hist := &recordingHistory{}
	s, _ := newTestScheduler(t, &fakeGenerator{}, WithHistory(hist))

	id, err := s.CreateJob(context.Background(), "quiet", specs("a"), SaveToHistory(false))
	require.NoError(t, err)
	runToCompletion(t, s, id)

	assert.Empty(t, hist.added)
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	gen := &fakeGenerator{fn: func(ctx context.Context, _ string, _ int) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}}
	s, _ := newTestScheduler(t, gen)

	id, err := s.CreateJob(context.Background(), "bounded", specs("1", "2", "3", "4", "5", "6", "7", "8"), WithConcurrency(2))
	require.NoError(t, err)
	job := runToCompletion(t, s, id)

	assert.Equal(t, core.JobCompleted, job.Status)
	assert.LessOrEqual(t, gen.maxSeen.Load(), int32(2))
	assert.Equal(t, int32(2), gen.maxSeen.Load(), "both slots should have been used")
}

func TestRun_ResultsInCompletionOrder(t *testing.T) {
	gen := &fakeGenerator{fn: func(ctx context.Context, text string, _ int) error {
		if text == "slow" {
			time.Sleep(80 * time.Millisecond)
		}
		return nil
	}}
	s, _ := newTestScheduler(t, gen)

	id, err := s.CreateJob(context.Background(), "order", specs("slow", "fast"), WithConcurrency(2))
	require.NoError(t, err)
	job := runToCompletion(t, s, id)

	require.Len(t, job.Results, 2)
	assert.Equal(t, "fast", job.Results[0].SourceText)
	assert.Equal(t, "slow", job.Results[1].SourceText)
	assert.Equal(t, "slow", job.Tasks[0].InputText, "task order is unchanged")
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	var failures atomic.Int32
	gen := &fakeGenerator{fn: func(ctx context.Context, _ string, _ int) error {
		if failures.Add(1) <= 2 {
			return errors.New("flaky encoder")
		}
		return nil
	}}
	s, _ := newTestScheduler(t, gen)
	events := s.Events()
	defer s.Unsubscribe(events)

	id, err := s.CreateJob(context.Background(), "flaky", specs("a"), WithRetryAttempts(2), WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	job := runToCompletion(t, s, id)

	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, 3, job.Tasks[0].Attempts)
	assert.Equal(t, int32(3), gen.calls.Load())

	retries := 0
	for len(events) > 0 {
		if _, ok := (<-events).(*core.TaskRetrying); ok {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
}

func TestRun_ExhaustsRetries(t *testing.T) {
	gen := &fakeGenerator{fn: func(context.Context, string, int) error {
		return errors.New("encoder down")
	}}
	s, _ := newTestScheduler(t, gen)

	id, err := s.CreateJob(context.Background(), "doomed", specs("a", "b"), WithRetryAttempts(1), WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	job := runToCompletion(t, s, id)

	assert.Equal(t, core.JobFailed, job.Status, "zero successes means failed")
	assert.Empty(t, job.Results)
	assert.Len(t, job.Errors, 2)
	for _, task := range job.Tasks {
		assert.Equal(t, core.TaskStatusFailed, task.Status)
		assert.Equal(t, 2, task.Attempts)
		assert.Contains(t, task.Error, "encoder down")
	}
	assert.Equal(t, int32(4), gen.calls.Load())
}

func TestRun_MixedOutcomeIsCompleted(t *testing.T) {
	gen := &fakeGenerator{fn: func(_ context.Context, text string, _ int) error {
		if text == "bad" {
			return errors.New("nope")
		}
		return nil
	}}
	s, _ := newTestScheduler(t, gen)

	id, err := s.CreateJob(context.Background(), "mixed", specs("good", "bad"), WithRetryAttempts(0))
	require.NoError(t, err)
	job := runToCompletion(t, s, id)

	assert.Equal(t, core.JobCompleted, job.Status)
	counts := job.Counts()
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 1, counts.Failed)
	assert.LessOrEqual(t, len(job.Results)+counts.Failed, len(job.Tasks))
	require.Len(t, job.Errors, 1)
	assert.True(t, strings.HasPrefix(job.Errors[0], "bad: "))
}

func TestRun_ValidationErrorsAreNotRetried(t *testing.T) {
	gen := &fakeGenerator{fn: func(context.Context, string, int) error {
		return core.Validation("text", "bad")
	}}
	s, _ := newTestScheduler(t, gen)

	id, err := s.CreateJob(context.Background(), "invalid", specs("a"), WithRetryAttempts(3), WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	job := runToCompletion(t, s, id)

	assert.Equal(t, 1, job.Tasks[0].Attempts)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestRun_TaskTimeout(t *testing.T) {
	gen := &fakeGenerator{fn: func(ctx context.Context, _ string, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	s, _ := newTestScheduler(t, gen)

	id, err := s.CreateJob(context.Background(), "slow", specs("a"), WithRetryAttempts(0), WithTaskTimeout(20*time.Millisecond))
	require.NoError(t, err)
	job := runToCompletion(t, s, id)

	assert.Equal(t, core.JobFailed, job.Status)
	assert.Contains(t, job.Tasks[0].Error, "timed out")
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	gen := &fakeGenerator{fn: func(context.Context, string, int) error {
		panic("encoder exploded")
	}}
	s, _ := newTestScheduler(t, gen)

	id, err := s.CreateJob(context.Background(), "panics", specs("a"), WithRetryAttempts(0))
	require.NoError(t, err)
	job := runToCompletion(t, s, id)

	assert.Contains(t, job.Tasks[0].Error, "panic: encoder exploded")
}

func TestStartJob_InvalidState(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeGenerator{})
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "once", specs("a"))
	require.NoError(t, err)
	runToCompletion(t, s, id)

	err = s.StartJob(ctx, id)
	assert.True(t, core.IsInvalidState(err))

	assert.ErrorIs(t, s.StartJob(ctx, "missing"), core.ErrJobNotFound)
}

func TestCancelJob_WhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	gen := &fakeGenerator{fn: func(ctx context.Context, _ string, _ int) error {
		started <- struct{}{}
		<-release
		return nil
	}}
	s, _ := newTestScheduler(t, gen)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "cancel me", specs("a", "b", "c"), WithConcurrency(1))
	require.NoError(t, err)
	require.NoError(t, s.StartJob(ctx, id))
	<-started

	require.NoError(t, s.CancelJob(ctx, id))
	close(release)

	job, err := s.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCancelled, job.Status)

	counts := job.Counts()
	assert.Equal(t, 1, counts.Completed, "in-flight task runs to completion")
	assert.Equal(t, 2, counts.Failed)
	assert.Equal(t, "cancelled", job.Tasks[1].Error)
	assert.Equal(t, int32(1), gen.calls.Load())

	assert.True(t, core.IsInvalidState(s.CancelJob(ctx, id)))
}

func TestCancelJob_Pending(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeGenerator{})
	ctx := context.Background()
	events := s.Events()
	defer s.Unsubscribe(events)

	id, err := s.CreateJob(ctx, "never run", specs("a"))
	require.NoError(t, err)
	require.NoError(t, s.CancelJob(ctx, id))

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCancelled, job.Status)
	assert.NotNil(t, job.CompletedAt)

	select {
	case e := <-events:
		finished, ok := e.(*core.JobFinished)
		require.True(t, ok)
		assert.Equal(t, core.JobCancelled, finished.Status)
	case <-time.After(time.Second):
		t.Fatal("expected JobFinished")
	}

	assert.True(t, core.IsInvalidState(s.StartJob(ctx, id)))
}

func TestOptimizeOrder(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeGenerator{})
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "sort", []TaskSpec{
		{Text: "medium text", Priority: 1},
		{Text: "a much longer text", Priority: 0},
		{Text: "short", Priority: 1},
		{Text: "tiny", Priority: 0},
	})
	require.NoError(t, err)
	require.NoError(t, s.OptimizeOrder(ctx, id))

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	var order []string
	for _, task := range job.Tasks {
		order = append(order, task.InputText)
	}
	assert.Equal(t, []string{"tiny", "a much longer text", "short", "medium text"}, order)

	runToCompletion(t, s, id)
	assert.True(t, core.IsInvalidState(s.OptimizeOrder(ctx, id)))
}

func TestResume_ResetsInterruptedJobs(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory(0)
	repo := NewKVRepository(backend)

	started := time.Now().UTC()
	require.NoError(t, repo.SaveJob(ctx, &core.BatchJob{
		ID:          "crashed",
		Name:        "crashed",
		Status:      core.JobProcessing,
		Concurrency: 2,
		CreatedAt:   started,
		StartedAt:   &started,
		Tasks: []*core.GenerationTask{
			{ID: "t1", InputText: "done", Kind: core.KindText, Status: core.TaskStatusCompleted, ResultID: "r1"},
			{ID: "t2", InputText: "mid", Kind: core.KindText, Status: core.TaskStatusProcessing, StartedAt: &started},
			{ID: "t3", InputText: "todo", Kind: core.KindText, Status: core.TaskStatusPending},
		},
		Results:  []*core.GenerationResult{{ID: "r1", SourceText: "done"}},
		Errors:   []string{},
		Settings: DefaultJobSettings(),
	}))
	require.NoError(t, repo.SaveJob(ctx, &core.BatchJob{ID: "finished", Name: "f", Status: core.JobCompleted, CreatedAt: started}))

	gen := &fakeGenerator{}
	s := NewScheduler(gen, repo)
	defer s.Close()

	ids, err := s.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"crashed"}, ids)

	stored, err := repo.GetJob(ctx, "crashed")
	require.NoError(t, err)
	assert.Equal(t, core.JobPending, stored.Status)
	assert.Equal(t, core.TaskStatusPending, stored.Tasks[1].Status)
	assert.Nil(t, stored.Tasks[1].StartedAt)
	assert.Equal(t, core.TaskStatusCompleted, stored.Tasks[0].Status, "finished tasks are kept")

	job := runToCompletion(t, s, "crashed")
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Len(t, job.Results, 3)
	assert.Equal(t, int32(2), gen.calls.Load(), "only unfinished tasks run again")
}

func TestClose_LeavesJobResumable(t *testing.T) {
	started := make(chan struct{}, 1)
	gen := &fakeGenerator{fn: func(ctx context.Context, _ string, _ int) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}}
	repo := NewKVRepository(kv.NewMemory(0))
	s := NewScheduler(gen, repo)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "interrupted", specs("a"), WithTaskTimeout(time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.StartJob(ctx, id))
	<-started
	require.NoError(t, s.Close())

	stored, err := repo.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobProcessing, stored.Status)
	assert.Equal(t, core.TaskStatusPending, stored.Tasks[0].Status)

	assert.ErrorIs(t, s.StartJob(ctx, id), ErrSchedulerClosed)
}

func TestResume_SkipsJobLeasedByAnotherScheduler(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory(0)

	release := make(chan struct{})
	genA := &fakeGenerator{fn: func(ctx context.Context, _ string, _ int) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	a := NewScheduler(genA, NewKVRepository(backend), WithLeaseTTL(time.Minute))
	defer a.Close()

	id, err := a.CreateJob(ctx, "shared", specs("a", "b", "c", "d"), WithConcurrency(1), WithTaskTimeout(time.Minute))
	require.NoError(t, err)
	require.NoError(t, a.StartJob(ctx, id))
	require.Eventually(t, func() bool { return genA.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	genB := &fakeGenerator{}
	b := NewScheduler(genB, NewKVRepository(backend))
	defer b.Close()

	ids, err := b.Resume(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.True(t, core.IsInvalidState(b.StartJob(ctx, id)), "a leased job cannot be started twice")

	close(release)
	job, err := a.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Len(t, job.Results, 4)
	assert.Empty(t, job.Owner)
	assert.Nil(t, job.LeaseUntil)
	assert.Equal(t, int32(0), genB.calls.Load())
}

func TestResume_TakesOverExpiredLease(t *testing.T) {
	ctx := context.Background()
	repo := NewKVRepository(kv.NewMemory(0))

	started := time.Now().UTC()
	expired := started.Add(-time.Minute)
	require.NoError(t, repo.SaveJob(ctx, &core.BatchJob{
		ID:          "orphan",
		Name:        "orphan",
		Status:      core.JobProcessing,
		Concurrency: 1,
		CreatedAt:   started,
		StartedAt:   &started,
		Tasks: []*core.GenerationTask{
			{ID: "t1", InputText: "x", Kind: core.KindText, Status: core.TaskStatusProcessing, StartedAt: &started},
		},
		Results:    []*core.GenerationResult{},
		Errors:     []string{},
		Settings:   DefaultJobSettings(),
		Owner:      "crashed-process",
		LeaseUntil: &expired,
	}))

	s := NewScheduler(&fakeGenerator{}, repo)
	defer s.Close()

	ids, err := s.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, ids)

	stored, err := repo.GetJob(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, core.JobPending, stored.Status)
	assert.Empty(t, stored.Owner)

	job := runToCompletion(t, s, "orphan")
	assert.Equal(t, core.JobCompleted, job.Status)
}

func TestRun_RenewsLease(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{fn: func(ctx context.Context, _ string, _ int) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	s, repo := newTestScheduler(t, gen, WithLeaseTTL(30*time.Millisecond))
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "lease", specs("a"), WithTaskTimeout(time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.StartJob(ctx, id))

	first, err := repo.GetJob(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, first.LeaseUntil)
	assert.Equal(t, s.id, first.Owner)

	assert.Eventually(t, func() bool {
		cur, err := repo.GetJob(ctx, id)
		return err == nil && cur.LeaseUntil != nil && cur.LeaseUntil.After(*first.LeaseUntil)
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	_, err = s.Wait(ctx, id)
	require.NoError(t, err)
}

func TestFinishedJobsLeaveMemory(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeGenerator{})
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "done", specs("a", "b"))
	require.NoError(t, err)
	runToCompletion(t, s, id)

	s.mu.Lock()
	_, cached := s.jobs[id]
	s.mu.Unlock()
	assert.False(t, cached)

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Len(t, job.Results, 2)

	pending, err := s.CreateJob(ctx, "never started", specs("c"))
	require.NoError(t, err)
	require.NoError(t, s.CancelJob(ctx, pending))
	s.mu.Lock()
	_, cached = s.jobs[pending]
	s.mu.Unlock()
	assert.False(t, cached)

	cancelled, err := s.GetJob(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, core.JobCancelled, cancelled.Status)
}

func TestRetryFailed(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	gen := &fakeGenerator{fn: func(_ context.Context, text string, _ int) error {
		if text == "b" && fail.Load() {
			return errors.New("down")
		}
		return nil
	}}
	s, _ := newTestScheduler(t, gen)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "partial", specs("a", "b"), WithRetryAttempts(0))
	require.NoError(t, err)
	runToCompletion(t, s, id)

	fail.Store(false)
	n, err := s.RetryFailed(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job := runToCompletion(t, s, id)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, 2, job.Counts().Completed)
	assert.Empty(t, job.Errors)
}

func TestDeleteJob(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{fn: func(context.Context, string, int) error {
		<-release
		return nil
	}}
	s, repo := newTestScheduler(t, gen)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "busy", specs("a"))
	require.NoError(t, err)
	require.NoError(t, s.StartJob(ctx, id))

	assert.True(t, core.IsInvalidState(s.DeleteJob(ctx, id)))
	close(release)
	_, err = s.Wait(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.DeleteJob(ctx, id))
	_, err = repo.GetJob(ctx, id)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
	_, err = s.GetJob(ctx, id)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestHooks(t *testing.T) {
	gen := &fakeGenerator{fn: func(_ context.Context, text string, _ int) error {
		if text == "bad" {
			return errors.New("x")
		}
		return nil
	}}
	s, _ := newTestScheduler(t, gen)

	var completed, failed, finished atomic.Int32
	s.OnTaskComplete(func(context.Context, *core.BatchJob, *core.GenerationTask) { completed.Add(1) })
	s.OnTaskFail(func(context.Context, *core.BatchJob, *core.GenerationTask, error) { failed.Add(1) })
	s.OnJobFinish(func(_ context.Context, job *core.BatchJob) {
		assert.Equal(t, core.JobCompleted, job.Status)
		finished.Add(1)
	})

	id, err := s.CreateJob(context.Background(), "hooks", specs("a", "b", "bad"), WithRetryAttempts(0))
	require.NoError(t, err)
	runToCompletion(t, s, id)

	assert.Equal(t, int32(2), completed.Load())
	assert.Equal(t, int32(1), failed.Load())
	assert.Equal(t, int32(1), finished.Load())
}

func TestListJobs_OverlaysLiveState(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeGenerator{})
	ctx := context.Background()

	for i := range 3 {
		_, err := s.CreateJob(ctx, fmt.Sprint("job", i), specs("a"))
		require.NoError(t, err)
	}
	jobs, err := s.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestComputeProgress(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job := &core.BatchJob{
		StartedAt: &start,
		Tasks: []*core.GenerationTask{
			{Status: core.TaskStatusCompleted},
			{Status: core.TaskStatusCompleted},
			{Status: core.TaskStatusFailed},
			{Status: core.TaskStatusProcessing, InputText: "working on it"},
			{Status: core.TaskStatusPending},
			{Status: core.TaskStatusPending},
		},
	}

	p := computeProgress(job, start.Add(4*time.Second))
	assert.Equal(t, 6, p.Total)
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 2, p.Pending)
	assert.Equal(t, 1, p.Processing)
	assert.Equal(t, "working on it", p.CurrentTask)
	assert.InDelta(t, 0.5, p.Throughput, 1e-9)
	assert.Equal(t, 6*time.Second, p.EstimatedTimeRemaining)
	assert.InDelta(t, 50.0, p.Percent, 1e-9)
}

func TestComputeProgress_NoThroughput(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job := &core.BatchJob{
		StartedAt: &start,
		Tasks:     []*core.GenerationTask{{Status: core.TaskStatusProcessing}},
	}
	p := computeProgress(job, start)
	assert.Zero(t, p.Throughput)
	assert.Zero(t, p.EstimatedTimeRemaining)
}

func TestTasksFromTexts(t *testing.T) {
	got := TasksFromTexts([]string{" https://a.example ", "", "hello", "hello", "WIFI:T:WPA;S:x;P:y;;"}, "", core.RenderOptions{})
	require.Len(t, got, 3)
	assert.Equal(t, core.KindURL, got[0].Kind)
	assert.Equal(t, "https://a.example", got[0].Text)
	assert.Equal(t, core.KindText, got[1].Kind)
	assert.Equal(t, core.KindWiFi, got[2].Kind)

	urls := TasksFromURLs([]string{"https://a", "https://a", "https://b"}, core.RenderOptions{Size: 64})
	require.Len(t, urls, 2)
	assert.Equal(t, core.KindURL, urls[1].Kind)
	assert.Equal(t, 64, urls[1].Options.Size)
}
