package batch

import (
	"context"
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// Progress is a point-in-time view of a job.
type Progress struct {
	Total      int
	Completed  int
	Failed     int
	Pending    int
	Processing int
	// CurrentTask labels the first task still processing.
	CurrentTask            string
	EstimatedTimeRemaining time.Duration
	// Throughput is completed tasks per second since the job started.
	Throughput float64
	Percent    float64
}

// GetProgress computes progress from task statuses and elapsed time.
func (s *Scheduler) GetProgress(ctx context.Context, id string) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.loadLocked(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return computeProgress(job, s.now()), nil
}

func computeProgress(job *core.BatchJob, now time.Time) Progress {
	c := job.Counts()
	p := Progress{
		Total:      len(job.Tasks),
		Completed:  c.Completed,
		Failed:     c.Failed,
		Pending:    c.Pending,
		Processing: c.Processing,
	}
	for _, t := range job.Tasks {
		if t.Status == core.TaskStatusProcessing {
			p.CurrentTask = t.Label()
			break
		}
	}
	if p.Total > 0 {
		p.Percent = float64(c.Completed+c.Failed) / float64(p.Total) * 100
	}
	if job.StartedAt == nil {
		return p
	}

	end := now
	if job.CompletedAt != nil {
		end = *job.CompletedAt
	}
	elapsed := end.Sub(*job.StartedAt)
	if elapsed < time.Millisecond {
		elapsed = time.Millisecond
	}
	p.Throughput = float64(c.Completed) / elapsed.Seconds()
	if p.Throughput > 0 {
		remaining := c.Pending + c.Processing
		p.EstimatedTimeRemaining = time.Duration(float64(remaining) / p.Throughput * float64(time.Second))
	}
	return p
}
