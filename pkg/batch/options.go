package batch

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// Defaults applied to new jobs.
const (
	DefaultConcurrency   = 3
	DefaultRetryAttempts = 2
	DefaultRetryDelay    = time.Second
	DefaultTaskTimeout   = 10 * time.Second
	DefaultLeaseTTL      = 30 * time.Second
)

// DefaultJobSettings returns the settings a job gets without options.
func DefaultJobSettings() core.JobSettings {
	return core.JobSettings{
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay,
		TaskTimeout:   DefaultTaskTimeout,
		SaveToHistory: true,
	}
}

// Option configures a Scheduler.
type Option interface {
	apply(*Scheduler)
}

type optionFunc func(*Scheduler)

func (f optionFunc) apply(s *Scheduler) { f(s) }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithHistory records successful results when a job asks for it.
func WithHistory(h HistoryRecorder) Option {
	return optionFunc(func(s *Scheduler) {
		s.history = h
	})
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	})
}

// WithLeaseTTL sets how long a running job stays claimed without a renewal.
// The lease is renewed every third of ttl.
func WithLeaseTTL(ttl time.Duration) Option {
	return optionFunc(func(s *Scheduler) {
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	})
}

// WithStorageRetry sets the retry policy for persisting job records.
func WithStorageRetry(cfg RetryConfig) Option {
	return optionFunc(func(s *Scheduler) {
		if cfg.MaxAttempts < 1 {
			cfg.MaxAttempts = 1
		}
		s.storageRetry = cfg
	})
}

// WithDefaults sets the concurrency and settings new jobs start from.
func WithDefaults(concurrency int, settings core.JobSettings) Option {
	return optionFunc(func(s *Scheduler) {
		s.defaultConcurrency = security.ClampConcurrency(concurrency)
		s.defaultSettings = normalizeSettings(settings)
	})
}

// JobOption adjusts a single job at creation.
type JobOption interface {
	applyJob(*jobConfig)
}

type jobConfig struct {
	concurrency int
	settings    core.JobSettings
}

type jobOptionFunc func(*jobConfig)

func (f jobOptionFunc) applyJob(c *jobConfig) { f(c) }

// WithConcurrency bounds how many tasks run at once.
// Values are clamped to [1, MaxConcurrency].
func WithConcurrency(n int) JobOption {
	return jobOptionFunc(func(c *jobConfig) {
		c.concurrency = security.ClampConcurrency(n)
	})
}

// WithRetryAttempts sets retries after the first attempt.
// Values are clamped to [0, MaxRetries].
func WithRetryAttempts(n int) JobOption {
	return jobOptionFunc(func(c *jobConfig) {
		c.settings.RetryAttempts = security.ClampRetries(n)
	})
}

// WithRetryDelay sets the base retry delay; attempt n waits n times this.
func WithRetryDelay(d time.Duration) JobOption {
	return jobOptionFunc(func(c *jobConfig) {
		if d >= 0 {
			c.settings.RetryDelay = d
		}
	})
}

// WithTaskTimeout bounds each attempt.
func WithTaskTimeout(d time.Duration) JobOption {
	return jobOptionFunc(func(c *jobConfig) {
		if d > 0 {
			c.settings.TaskTimeout = d
		}
	})
}

// SaveToHistory controls whether results are added to history.
func SaveToHistory(enabled bool) JobOption {
	return jobOptionFunc(func(c *jobConfig) {
		c.settings.SaveToHistory = enabled
	})
}

// WithExportFormat records the format the caller intends to export with.
func WithExportFormat(format string) JobOption {
	return jobOptionFunc(func(c *jobConfig) {
		c.settings.ExportFormat = format
	})
}

// WithSettings replaces every setting at once.
func WithSettings(settings core.JobSettings) JobOption {
	return jobOptionFunc(func(c *jobConfig) {
		c.settings = normalizeSettings(settings)
	})
}

func normalizeSettings(s core.JobSettings) core.JobSettings {
	s.RetryAttempts = security.ClampRetries(s.RetryAttempts)
	if s.RetryDelay < 0 {
		s.RetryDelay = 0
	}
	if s.TaskTimeout <= 0 {
		s.TaskTimeout = DefaultTaskTimeout
	}
	return s
}
