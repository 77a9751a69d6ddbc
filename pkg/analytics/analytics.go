package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// DefaultRetention bounds how long raw events and summaries are kept.
const DefaultRetention = 90 * 24 * time.Hour

// Aggregator records events and maintains their roll-ups.
type Aggregator struct {
	storage   Storage
	logger    *slog.Logger
	now       func() time.Time
	retention time.Duration
	tick      time.Duration
	enabled   atomic.Bool

	// aggMu serializes Aggregate so concurrent runs cannot interleave
	// their bucket replacements.
	aggMu sync.Mutex
}

// Option configures an Aggregator.
type Option interface {
	apply(*Aggregator)
}

type optionFunc func(*Aggregator)

func (f optionFunc) apply(a *Aggregator) { f(a) }

// WithEnabled sets the initial enabled state. Aggregators start enabled.
func WithEnabled(enabled bool) Option {
	return optionFunc(func(a *Aggregator) {
		a.enabled.Store(enabled)
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	})
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	})
}

// WithRetention sets how long data is kept by the weekly cleanup.
func WithRetention(d time.Duration) Option {
	return optionFunc(func(a *Aggregator) {
		if d > 0 {
			a.retention = d
		}
	})
}

// WithTickInterval sets how often Start checks its schedules.
func WithTickInterval(d time.Duration) Option {
	return optionFunc(func(a *Aggregator) {
		if d > 0 {
			a.tick = d
		}
	})
}

// New creates an Aggregator on storage.
func New(storage Storage, opts ...Option) *Aggregator {
	a := &Aggregator{
		storage:   storage,
		logger:    slog.Default(),
		now:       time.Now,
		retention: DefaultRetention,
		tick:      time.Minute,
	}
	a.enabled.Store(true)
	for _, opt := range opts {
		opt.apply(a)
	}
	return a
}

// SetEnabled turns recording on or off.
func (a *Aggregator) SetEnabled(enabled bool) { a.enabled.Store(enabled) }

// Enabled reports whether events are being recorded.
func (a *Aggregator) Enabled() bool { return a.enabled.Load() }

// RecordEvent sanitizes props and stores the event. It is a no-op when
// disabled. Failures are logged.
func (a *Aggregator) RecordEvent(ctx context.Context, category, name string, props map[string]any) {
	if !a.Enabled() {
		return
	}
	defer a.recoverPanic("record")

	category = strings.TrimSpace(category)
	name = strings.TrimSpace(name)
	if category == "" || name == "" {
		a.logger.Debug("analytics event dropped", "reason", "missing category or name")
		return
	}
	e := &Event{
		Category:   truncate(category, 64),
		Name:       truncate(name, 64),
		Properties: security.SanitizeProperties(props),
		Timestamp:  a.now(),
	}
	if err := a.storage.InsertEvent(ctx, e); err != nil {
		a.logger.Warn("failed to record analytics event", "category", e.Category, "name", e.Name, "error", err)
	}
}

// Aggregate recomputes the summaries of every bucket that has raw events.
// Running it twice over the same events yields the same rows.
func (a *Aggregator) Aggregate(ctx context.Context) error {
	a.aggMu.Lock()
	defer a.aggMu.Unlock()

	events, err := a.storage.Events(ctx, windowStart(a.now().Add(-a.retention)))
	if err != nil {
		a.logger.Error("analytics aggregation failed", "stage", "load", "error", err)
		return fmt.Errorf("load events: %w", err)
	}

	stamp := a.now()
	for _, period := range Periods {
		type key struct{ bucket, category, name string }
		counts := make(map[key]*Summary)
		var buckets []string
		seen := make(map[string]bool)
		for _, e := range events {
			bucket, start := period.bucket(e.Timestamp.In(a.now().Location()))
			if !seen[bucket] {
				seen[bucket] = true
				buckets = append(buckets, bucket)
			}
			k := key{bucket, e.Category, e.Name}
			row, ok := counts[k]
			if !ok {
				row = &Summary{
					Period:      period,
					Bucket:      bucket,
					Category:    e.Category,
					Name:        e.Name,
					BucketStart: start,
					UpdatedAt:   stamp,
				}
				counts[k] = row
			}
			row.Count++
		}

		rows := make([]Summary, 0, len(counts))
		for _, row := range counts {
			rows = append(rows, *row)
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Bucket != rows[j].Bucket {
				return rows[i].Bucket < rows[j].Bucket
			}
			if rows[i].Category != rows[j].Category {
				return rows[i].Category < rows[j].Category
			}
			return rows[i].Name < rows[j].Name
		})
		if err := a.storage.ReplaceSummaries(ctx, period, buckets, rows); err != nil {
			a.logger.Error("analytics aggregation failed", "stage", "store", "period", period, "error", err)
			return fmt.Errorf("store %s summaries: %w", period, err)
		}
	}

	a.logger.Info("analytics aggregated", "events", len(events))
	return nil
}

// windowStart moves cutoff back to the start of the widest bucket holding it,
// so a bucket is never rebuilt from part of its events.
func windowStart(cutoff time.Time) time.Time {
	since := cutoff
	for _, p := range Periods {
		if _, start := p.bucket(cutoff); start.Before(since) {
			since = start
		}
	}
	return since
}

// PurgeOlderThan deletes raw events and summaries older than d and returns
// the number of raw events removed. Failures are logged and report zero.
func (a *Aggregator) PurgeOlderThan(ctx context.Context, d time.Duration) int64 {
	defer a.recoverPanic("purge")
	removed, err := a.storage.DeleteBefore(ctx, a.now().Add(-d))
	if err != nil {
		a.logger.Error("analytics purge failed", "error", err)
		return 0
	}
	if removed > 0 {
		a.logger.Info("analytics purged", "events", removed, "older_than", d)
	}
	return removed
}

func (a *Aggregator) recoverPanic(op string) {
	if r := recover(); r != nil {
		a.logger.Error("analytics panic recovered", "op", op, "panic", r)
	}
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
