package analytics

import (
	"context"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// Event categories written by Observe.
const (
	CategoryGeneration = "generation"
	CategoryBatch      = "batch"
	CategoryExport     = "export"
)

// Observe records every event received on events until the channel is
// closed or ctx is done. Run it in its own goroutine; it never sends
// anything back to the emitter.
func (a *Aggregator) Observe(ctx context.Context, events <-chan core.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			category, name, props := describe(e)
			if name == "" {
				continue
			}
			a.RecordEvent(ctx, category, name, props)
		}
	}
}

// describe maps a domain event to its analytics form. Only coarse,
// non-identifying fields are kept; source text and error messages are not.
func describe(e core.Event) (category, name string, props map[string]any) {
	switch ev := e.(type) {
	case *core.GenerationCompleted:
		return CategoryGeneration, "qr_generated", map[string]any{
			"kind":       string(ev.Kind),
			"durationMs": ev.Duration.Milliseconds(),
		}
	case *core.GenerationFailed:
		return CategoryGeneration, "qr_failed", map[string]any{
			"kind": string(ev.Kind),
		}
	case *core.JobStarted:
		return CategoryBatch, "job_started", map[string]any{
			"tasks": ev.Total,
		}
	case *core.JobFinished:
		return CategoryBatch, "job_finished", map[string]any{
			"status":     string(ev.Status),
			"completed":  ev.Completed,
			"failed":     ev.Failed,
			"durationMs": ev.Duration.Milliseconds(),
		}
	case *core.TaskCompleted:
		return CategoryBatch, "task_completed", map[string]any{
			"kind":     string(ev.Kind),
			"attempts": ev.Attempts,
		}
	case *core.TaskFailed:
		return CategoryBatch, "task_failed", map[string]any{
			"kind":     string(ev.Kind),
			"attempts": ev.Attempts,
		}
	case *core.ExportCompleted:
		return CategoryExport, "export_completed", map[string]any{
			"format": ev.Format,
			"count":  ev.Count,
			"bytes":  ev.Size,
		}
	}
	return "", "", nil
}
