package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jdziat/simple-qr-jobs/internal/app"
	"github.com/jdziat/simple-qr-jobs/pkg/batch"
	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/export"
)

// BatchRunAction creates a job from --file lines or arguments, runs it and
// waits for it to finish.
func BatchRunAction(ctx context.Context, cmd *cli.Command) error {
	texts := cmd.Args().Slice()
	if path := cmd.String("file"); path != "" {
		lines, err := readLines(path)
		if err != nil {
			return err
		}
		texts = append(texts, lines...)
	}
	if len(texts) == 0 {
		return errors.New("nothing to generate: pass texts as arguments or --file")
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := a.Store.GetSettings(ctx)
	if err != nil {
		return err
	}
	specs := batch.TasksFromTexts(texts, core.Kind(cmd.String("kind")), renderOptions(cmd, settings.RenderOptions()))

	opts := []batch.JobOption{batch.SaveToHistory(settings.SaveHistory && !cmd.Bool("no-history"))}
	if n := cmd.Int("concurrency"); n > 0 {
		opts = append(opts, batch.WithConcurrency(n))
	} else {
		opts = append(opts, batch.WithConcurrency(settings.BatchConcurrency))
	}
	if cmd.IsSet("retries") {
		opts = append(opts, batch.WithRetryAttempts(cmd.Int("retries")))
	}
	if cmd.IsSet("retry-delay") {
		opts = append(opts, batch.WithRetryDelay(cmd.Duration("retry-delay")))
	}
	if cmd.IsSet("timeout") {
		opts = append(opts, batch.WithTaskTimeout(cmd.Duration("timeout")))
	}
	if f := cmd.String("export"); f != "" {
		opts = append(opts, batch.WithExportFormat(f))
	}

	id, err := a.Scheduler.CreateJob(ctx, cmd.String("name"), specs, opts...)
	if err != nil {
		return err
	}
	if cmd.Bool("optimize") {
		if err := a.Scheduler.OptimizeOrder(ctx, id); err != nil {
			return err
		}
	}
	if err := a.Scheduler.StartJob(ctx, id); err != nil {
		return err
	}

	job, err := waitWithProgress(ctx, cmd, a, id)
	if err != nil {
		return err
	}
	printJobSummary(cmd, job)

	if f := job.Settings.ExportFormat; f != "" && len(job.Results) > 0 {
		out, err := a.Bundler.Export(ctx, job.Results, export.Options{
			Format:   export.Format(f),
			Filename: job.Name,
		})
		if err != nil {
			return err
		}
		if err := export.Deliver(ctx, out, a.Sink); err != nil {
			return err
		}
		fmt.Fprintf(stdout(cmd), "exported %d codes to %s\n", out.Count, out.Filename)
	}
	if job.Status == core.JobFailed {
		return fmt.Errorf("job %s failed", job.ID)
	}
	return nil
}

// waitWithProgress prints progress until the job stops running. Interrupting
// the command cancels the job.
func waitWithProgress(ctx context.Context, cmd *cli.Command, a *app.App, id string) (*core.BatchJob, error) {
	w := stdout(cmd)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p, err := a.Scheduler.GetProgress(ctx, id)
				if err == nil {
					fmt.Fprintf(w, "%5.1f%%  %d/%d done  %d failed  eta %s\n",
						p.Percent, p.Completed, p.Total, p.Failed, p.EstimatedTimeRemaining.Round(time.Second))
				}
			}
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	job, err := a.Scheduler.Wait(ctx, id)
	if err != nil && ctx.Err() != nil {
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if cerr := a.Scheduler.CancelJob(cancelCtx, id); cerr != nil {
			a.Logger.Warn("failed to cancel job", "job_id", id, "error", cerr)
		}
		return a.Scheduler.Wait(cancelCtx, id)
	}
	return job, err
}

func printJobSummary(cmd *cli.Command, job *core.BatchJob) {
	c := job.Counts()
	w := stdout(cmd)
	fmt.Fprintf(w, "job %s %s: %d completed, %d failed\n", job.ID, job.Status, c.Completed, c.Failed)
	for _, e := range job.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}

// BatchListAction prints every stored job.
func BatchListAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.Scheduler.ListJobs(ctx)
	if err != nil {
		return err
	}
	table := newTable(cmd, "ID", "Name", "Status", "Tasks", "Results", "Created")
	for _, j := range jobs {
		table.Append(j.ID, shorten(j.Name, 30), string(j.Status),
			strconv.Itoa(len(j.Tasks)), strconv.Itoa(len(j.Results)), formatTime(j.CreatedAt))
	}
	return table.Render()
}

// BatchStatusAction prints progress and per-task state for --id.
func BatchStatusAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id := cmd.String("id")
	job, err := a.Scheduler.GetJob(ctx, id)
	if err != nil {
		return err
	}
	p, err := a.Scheduler.GetProgress(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout(cmd), "%s (%s): %.1f%% of %d tasks, %d failed\n", job.Name, job.Status, p.Percent, p.Total, p.Failed)

	table := newTable(cmd, "Task", "Kind", "Status", "Attempts", "Error")
	for _, t := range job.Tasks {
		table.Append(t.ID, string(t.Kind), string(t.Status), strconv.Itoa(t.Attempts), shorten(t.Error, 50))
	}
	return table.Render()
}

// BatchCancelAction cancels --id.
func BatchCancelAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Scheduler.CancelJob(ctx, cmd.String("id")); err != nil {
		return err
	}
	fmt.Fprintln(stdout(cmd), "cancelled")
	return nil
}

// BatchRetryAction requeues the failed tasks of --id and runs them.
func BatchRetryAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id := cmd.String("id")
	n, err := a.Scheduler.RetryFailed(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout(cmd), "retrying %d tasks\n", n)
	if n == 0 {
		return nil
	}
	if err := a.Scheduler.StartJob(ctx, id); err != nil {
		return err
	}
	job, err := waitWithProgress(ctx, cmd, a, id)
	if err != nil {
		return err
	}
	printJobSummary(cmd, job)
	return nil
}

// BatchResumeAction restarts jobs interrupted by an earlier process.
func BatchResumeAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	started := a.StartResumed(ctx)
	if len(started) == 0 {
		fmt.Fprintln(stdout(cmd), "no interrupted jobs")
		return nil
	}
	for _, id := range started {
		job, err := waitWithProgress(ctx, cmd, a, id)
		if err != nil {
			return err
		}
		printJobSummary(cmd, job)
	}
	return nil
}

// BatchDeleteAction removes --id.
func BatchDeleteAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Scheduler.DeleteJob(ctx, cmd.String("id"))
}

func readLines(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
