package batch

import (
	"context"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// OnTaskComplete registers a callback run after a task succeeds.
func (s *Scheduler) OnTaskComplete(fn func(context.Context, *core.BatchJob, *core.GenerationTask)) {
	s.hookMu.Lock()
	s.onTaskComplete = append(s.onTaskComplete, fn)
	s.hookMu.Unlock()
}

// OnTaskFail registers a callback run after a task exhausts its retries.
func (s *Scheduler) OnTaskFail(fn func(context.Context, *core.BatchJob, *core.GenerationTask, error)) {
	s.hookMu.Lock()
	s.onTaskFail = append(s.onTaskFail, fn)
	s.hookMu.Unlock()
}

// OnJobFinish registers a callback run when a job reaches a terminal status.
func (s *Scheduler) OnJobFinish(fn func(context.Context, *core.BatchJob)) {
	s.hookMu.Lock()
	s.onJobFinish = append(s.onJobFinish, fn)
	s.hookMu.Unlock()
}

// Events returns a channel receiving scheduler events.
// The caller must call Unsubscribe when done.
func (s *Scheduler) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	s.hookMu.Lock()
	s.eventSubs = append(s.eventSubs, ch)
	s.hookMu.Unlock()
	return ch
}

// Unsubscribe removes a channel created by Events. The channel is not closed.
func (s *Scheduler) Unsubscribe(ch <-chan core.Event) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	for i, sub := range s.eventSubs {
		if sub == ch {
			s.eventSubs = append(s.eventSubs[:i], s.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends e to every subscriber, dropping it for subscribers that are full.
func (s *Scheduler) Emit(e core.Event) {
	s.hookMu.RLock()
	subs := make([]chan core.Event, len(s.eventSubs))
	copy(subs, s.eventSubs)
	s.hookMu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (s *Scheduler) callTaskCompleteHooks(ctx context.Context, job *core.BatchJob, task *core.GenerationTask) {
	s.hookMu.RLock()
	hooks := make([]func(context.Context, *core.BatchJob, *core.GenerationTask), len(s.onTaskComplete))
	copy(hooks, s.onTaskComplete)
	s.hookMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, task)
	}
}

func (s *Scheduler) callTaskFailHooks(ctx context.Context, job *core.BatchJob, task *core.GenerationTask, err error) {
	s.hookMu.RLock()
	hooks := make([]func(context.Context, *core.BatchJob, *core.GenerationTask, error), len(s.onTaskFail))
	copy(hooks, s.onTaskFail)
	s.hookMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, task, err)
	}
}

func (s *Scheduler) callJobFinishHooks(ctx context.Context, job *core.BatchJob) {
	s.hookMu.RLock()
	hooks := make([]func(context.Context, *core.BatchJob), len(s.onJobFinish))
	copy(hooks, s.onJobFinish)
	s.hookMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}
