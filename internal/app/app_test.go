package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-qr-jobs/internal/config"
	"github.com/jdziat/simple-qr-jobs/pkg/batch"
	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/export"
	"github.com/jdziat/simple-qr-jobs/pkg/store"
)

func testConfig(t *testing.T, backend config.Backend) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		KV: config.KVConfig{
			Backend:    backend,
			SQLitePath: dir + "/qrjobs.db",
			QuotaBytes: 5 << 20,
		},
		Store: config.StoreConfig{
			CacheTTL:        time.Second,
			HistoryMax:      10,
			DuplicateWindow: time.Minute,
		},
		Batch: config.BatchConfig{
			Concurrency:   2,
			RetryAttempts: 1,
			RetryDelay:    10 * time.Millisecond,
			TaskTimeout:   5 * time.Second,
		},
		OutputDir: dir + "/out",
		Analytics: config.AnalyticsConfig{Retention: 24 * time.Hour},
		Log:       config.LogConfig{Level: "error", Format: "text"},
	}
}

func newTestApp(t *testing.T, backend config.Backend) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(t, backend))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func counterValue(t *testing.T, a *App, name string) float64 {
	t.Helper()
	families, err := a.Registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestApp_BatchEndToEnd(t *testing.T) {
	for _, backend := range []config.Backend{config.BackendMemory, config.BackendSQLite} {
		t.Run(string(backend), func(t *testing.T) {
			a := newTestApp(t, backend)
			ctx := context.Background()

			specs := batch.TasksFromURLs([]string{"https://example.com/a", "https://example.com/b"}, core.RenderOptions{})
			id, err := a.Scheduler.CreateJob(ctx, "links", specs)
			require.NoError(t, err)
			require.NoError(t, a.Scheduler.StartJob(ctx, id))

			job, err := a.Scheduler.Wait(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, core.JobCompleted, job.Status)
			require.Len(t, job.Results, 2)

			history, err := a.Store.GetHistory(ctx)
			require.NoError(t, err)
			assert.Len(t, history, 2)

			assert.Eventually(t, func() bool {
				return counterValue(t, a, "qrjobs_tasks_processed_total") == 2
			}, 2*time.Second, 10*time.Millisecond)

			out, err := a.Bundler.Export(ctx, job.Results, export.Options{Format: export.FormatJSON})
			require.NoError(t, err)
			require.NoError(t, export.Deliver(ctx, out, a.Sink))
			assert.Eventually(t, func() bool {
				return counterValue(t, a, "qrjobs_exports_total") == 1
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestApp_AnalyticsFollowsSettings(t *testing.T) {
	a := newTestApp(t, config.BackendMemory)
	ctx := context.Background()
	assert.False(t, a.Analytics.Enabled())

	_, err := a.Store.UpdateSettings(ctx, store.SettingsPatch{AnalyticsEnabled: store.Ptr(true)})
	require.NoError(t, err)
	assert.Eventually(t, a.Analytics.Enabled, 2*time.Second, 10*time.Millisecond)

	_, err = a.Generator.Generate(ctx, "hello", core.RenderOptions{}, core.KindText)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		report, err := a.Analytics.ExportInsights(ctx)
		return err == nil && report.TotalEvents >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_ResumesInterruptedJobs(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	ctx := context.Background()

	first, err := New(ctx, cfg)
	require.NoError(t, err)
	id, err := first.Scheduler.CreateJob(ctx, "resume me", batch.TasksFromTexts([]string{"one", "two"}, core.KindText, core.RenderOptions{}))
	require.NoError(t, err)

	// Mark the job processing on disk without running it, as a crash would leave it.
	job, err := first.Scheduler.GetJob(ctx, id)
	require.NoError(t, err)
	job.Status = core.JobProcessing
	require.NoError(t, batch.NewKVRepository(first.KV).SaveJob(ctx, job))
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg)
	require.NoError(t, err)
	defer second.Close()
	stored, err := second.Scheduler.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobProcessing, stored.Status, "opening the app leaves jobs alone")

	started := second.StartResumed(ctx)
	assert.Equal(t, []string{id}, started)
	done, err := second.Scheduler.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, done.Status)
}

func TestApp_ServeMetrics(t *testing.T) {
	a := newTestApp(t, config.BackendMemory)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.ServeMetrics(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestNew_BadBackend(t *testing.T) {
	cfg := testConfig(t, config.BackendPostgres)
	cfg.KV.DatabaseURL = "postgres://nobody@127.0.0.1:1/none?connect_timeout=1"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
