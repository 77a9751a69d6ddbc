// Package qrjobs generates QR codes, runs them in durable batches and
// bundles the results for download.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	backend := qrjobs.NewMemoryKV(0)
//	gen := qrjobs.NewGenerator()
//	sched := qrjobs.NewScheduler(gen, backend)
//
//	id, _ := sched.CreateJob(ctx, "launch", qrjobs.TasksFromTexts(lines, "", qrjobs.DefaultRenderOptions()))
//	_ = sched.StartJob(ctx, id)
//	job, _ := sched.Wait(ctx, id)
//
//	out, _ := qrjobs.NewBundler().Export(ctx, job.Results, qrjobs.ExportOptions{Format: qrjobs.FormatArchive})
package qrjobs

import (
	"gorm.io/gorm"

	"github.com/jdziat/simple-qr-jobs/pkg/analytics"
	"github.com/jdziat/simple-qr-jobs/pkg/batch"
	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/encoder"
	"github.com/jdziat/simple-qr-jobs/pkg/export"
	"github.com/jdziat/simple-qr-jobs/pkg/generator"
	"github.com/jdziat/simple-qr-jobs/pkg/kv"
	"github.com/jdziat/simple-qr-jobs/pkg/security"
	"github.com/jdziat/simple-qr-jobs/pkg/store"
)

type (
	// Kind classifies what a QR code encodes.
	Kind = core.Kind

	// ErrorCorrection is the QR error correction level.
	ErrorCorrection = core.ErrorCorrection

	// RenderOptions control how a code is drawn.
	RenderOptions = core.RenderOptions

	// GenerationResult is a rendered code with its metadata.
	GenerationResult = core.GenerationResult

	// GenerationTask is one unit of work inside a batch job.
	GenerationTask = core.GenerationTask

	// BatchJob is a persisted batch of tasks.
	BatchJob = core.BatchJob

	// JobStatus is the aggregate state of a batch job.
	JobStatus = core.JobStatus

	// JobSettings holds per-job retry and persistence policy.
	JobSettings = core.JobSettings

	// Event is the interface for all scheduler and generator events.
	Event = core.Event

	// KV is the key-value persistence contract.
	KV = kv.Store

	// Generator renders codes from text or typed payloads.
	Generator = generator.Generator

	// Payload is a typed QR content builder.
	Payload = generator.Payload

	// Scheduler runs batch jobs.
	Scheduler = batch.Scheduler

	// TaskSpec describes one task to add to a job.
	TaskSpec = batch.TaskSpec

	// Progress reports how far a job has got.
	Progress = batch.Progress

	// Store is the cached settings and history store.
	Store = store.Store

	// Settings are the persisted user preferences.
	Settings = store.Settings

	// Bundler turns results into downloadable bundles.
	Bundler = export.Bundler

	// ExportOptions controls a single export.
	ExportOptions = export.Options

	// ExportFormat selects the bundle layout.
	ExportFormat = export.Format

	// Analytics aggregates privacy-filtered usage events.
	Analytics = analytics.Aggregator
)

// Content kinds
const (
	KindURL      = core.KindURL
	KindText     = core.KindText
	KindWiFi     = core.KindWiFi
	KindContact  = core.KindContact
	KindCalendar = core.KindCalendar
	KindEmail    = core.KindEmail
	KindPhone    = core.KindPhone
	KindSMS      = core.KindSMS
	KindCustom   = core.KindCustom
)

// Job status constants
const (
	JobPending    = core.JobPending
	JobProcessing = core.JobProcessing
	JobCompleted  = core.JobCompleted
	JobFailed     = core.JobFailed
	JobCancelled  = core.JobCancelled
)

// Export formats
const (
	FormatArchive   = export.FormatArchive
	FormatJSON      = export.FormatJSON
	FormatCSV       = export.FormatCSV
	FormatPrintable = export.FormatPrintable
	FormatGallery   = export.FormatGallery
)

// Security limits
const (
	MaxConcurrency = security.MaxConcurrency
)

// DefaultRenderOptions returns the render defaults.
func DefaultRenderOptions() RenderOptions {
	return core.DefaultRenderOptions()
}

// NewMemoryKV returns an in-process KV bounded by quota bytes; 0 is unbounded.
func NewMemoryKV(quota int64) *kv.Memory {
	return kv.NewMemory(quota)
}

// NewGormKV returns a KV stored in db. Call Migrate before use.
func NewGormKV(db *gorm.DB, quota int64) *kv.GormStore {
	return kv.NewGormStore(db, quota)
}

// NewGenerator returns a Generator backed by the PNG encoder.
func NewGenerator(opts ...generator.Option) *Generator {
	return generator.New(encoder.New(), opts...)
}

// NewStore returns a settings and history store on backend.
func NewStore(backend KV, opts ...store.Option) *Store {
	return store.New(backend, opts...)
}

// NewScheduler returns a Scheduler that persists jobs in backend.
func NewScheduler(gen batch.Generator, backend KV, opts ...batch.Option) *Scheduler {
	return batch.NewScheduler(gen, batch.NewKVRepository(backend), opts...)
}

// NewBundler returns an export Bundler.
func NewBundler(opts ...export.Option) *Bundler {
	return export.NewBundler(opts...)
}

// NewAnalytics returns an aggregator storing events in db, along with the
// storage so callers can Migrate it.
func NewAnalytics(db *gorm.DB, opts ...analytics.Option) (*Analytics, *analytics.GormStorage) {
	s := analytics.NewGormStorage(db)
	return analytics.New(s, opts...), s
}

// TasksFromTexts builds task specs, skipping blank and repeated lines. An
// empty kind is detected per text.
func TasksFromTexts(texts []string, kind Kind, opts RenderOptions) []TaskSpec {
	return batch.TasksFromTexts(texts, kind, opts)
}

// DetectKind guesses the kind of text from its prefix.
func DetectKind(text string) Kind {
	return generator.DetectKind(text)
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	return core.IsValidation(err)
}

// IsCancelled reports whether err comes from a cancellation.
func IsCancelled(err error) bool {
	return core.IsCancelled(err)
}

// IsStorage reports whether err comes from the persistence layer.
func IsStorage(err error) bool {
	return core.IsStorage(err)
}
