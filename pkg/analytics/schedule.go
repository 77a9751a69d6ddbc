package analytics

import (
	"context"
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/schedule"
)

// Default maintenance slots: daily roll-up at local midnight and cleanup
// early on Sunday.
var (
	AggregateSchedule = schedule.Cron("0 0 * * *")
	CleanupSchedule   = schedule.Weekly(time.Sunday, 3, 0, time.Local)
)

type maintenanceTask struct {
	name     string
	schedule schedule.Schedule
	run      func(ctx context.Context)
}

// Start runs aggregation and cleanup on their schedules until ctx is done.
// It blocks; run it in its own goroutine.
func (a *Aggregator) Start(ctx context.Context) {
	tasks := []maintenanceTask{
		{name: "aggregate", schedule: AggregateSchedule, run: func(ctx context.Context) {
			_ = a.Aggregate(ctx)
		}},
		{name: "cleanup", schedule: CleanupSchedule, run: func(ctx context.Context) {
			a.PurgeOlderThan(ctx, a.retention)
		}},
	}
	a.runSchedules(ctx, tasks)
}

func (a *Aggregator) runSchedules(ctx context.Context, tasks []maintenanceTask) {
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	started := a.now()
	next := make([]time.Time, len(tasks))
	for i, t := range tasks {
		next[i] = t.schedule.Next(started)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := a.now()
			for i, t := range tasks {
				if now.Before(next[i]) {
					continue
				}
				a.runTask(ctx, t)
				next[i] = t.schedule.Next(now)
			}
		}
	}
}

func (a *Aggregator) runTask(ctx context.Context, t maintenanceTask) {
	defer a.recoverPanic(t.name)
	a.logger.Debug("analytics maintenance", "task", t.name)
	t.run(ctx)
}
