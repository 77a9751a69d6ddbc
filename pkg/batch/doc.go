// Package batch runs named collections of QR generation tasks.
//
// A Scheduler accepts a job, persists it, and on StartJob drains its tasks
// through a counting semaphore. Each task is retried with linearly
// increasing delay, raced against a per-task timeout, and the job record is
// persisted after every state change so an interrupted process can call
// Resume on the next start.
//
// Basic usage:
//
//	sched := batch.NewScheduler(gen, batch.NewKVRepository(store))
//	id, _ := sched.CreateJob(ctx, "tabs", batch.TasksFromURLs(urls, core.RenderOptions{}),
//	    batch.WithConcurrency(4),
//	)
//	_ = sched.StartJob(ctx, id)
//	job, _ := sched.Wait(ctx, id)
package batch
