// Package core provides the domain models and interfaces for the qrjobs package.
package core

import (
	"time"
)

// Kind describes how a task's input text was assembled.
type Kind string

const (
	KindURL      Kind = "url"
	KindText     Kind = "text"
	KindWiFi     Kind = "wifi"
	KindContact  Kind = "contact"
	KindCalendar Kind = "calendar"
	KindEmail    Kind = "email"
	KindPhone    Kind = "phone"
	KindSMS      Kind = "sms"
	KindCustom   Kind = "custom"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindURL, KindText, KindWiFi, KindContact, KindCalendar, KindEmail, KindPhone, KindSMS, KindCustom}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ErrorCorrection is one of the four standard QR redundancy tiers.
type ErrorCorrection string

const (
	CorrectionLow      ErrorCorrection = "L" // ~7% recovery
	CorrectionMedium   ErrorCorrection = "M" // ~15% recovery
	CorrectionQuartile ErrorCorrection = "Q" // ~25% recovery
	CorrectionHigh     ErrorCorrection = "H" // ~30% recovery
)

// Valid reports whether the level is one of L, M, Q, H.
func (e ErrorCorrection) Valid() bool {
	switch e {
	case CorrectionLow, CorrectionMedium, CorrectionQuartile, CorrectionHigh:
		return true
	}
	return false
}

// RenderOptions controls how a QR symbol is rendered.
type RenderOptions struct {
	Size int `json:"size"` // output width in pixels
	// Margin is the quiet zone in modules. Zero renders without a border
	// once any other field is set; a negative value selects DefaultMargin.
	// Only an entirely empty RenderOptions picks up the default margin at zero.
	Margin          int             `json:"margin"`
	Foreground      string          `json:"foreground"`
	Background      string          `json:"background"`
	ErrorCorrection ErrorCorrection `json:"errorCorrectionLevel"`
}

// Default render settings.
const (
	DefaultSize       = 256
	DefaultMargin     = 4
	DefaultForeground = "#000000"
	DefaultBackground = "#ffffff"
	DefaultCorrection = CorrectionMedium
)

// DefaultRenderOptions returns the options used when none are given.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Size:            DefaultSize,
		Margin:          DefaultMargin,
		Foreground:      DefaultForeground,
		Background:      DefaultBackground,
		ErrorCorrection: DefaultCorrection,
	}
}

// WithDefaults returns a copy of o with unset fields replaced by defaults.
// A zero Margin is kept (borderless) unless every field is unset.
func (o RenderOptions) WithDefaults() RenderOptions {
	if o == (RenderOptions{}) {
		return DefaultRenderOptions()
	}
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Margin < 0 {
		o.Margin = DefaultMargin
	}
	if o.Foreground == "" {
		o.Foreground = DefaultForeground
	}
	if o.Background == "" {
		o.Background = DefaultBackground
	}
	if o.ErrorCorrection == "" {
		o.ErrorCorrection = DefaultCorrection
	}
	return o
}

// ColorScheme records the colors a result was rendered with.
type ColorScheme struct {
	Dark  string `json:"dark"`
	Light string `json:"light"`
}

// ResultMetadata describes the render settings behind a result.
type ResultMetadata struct {
	Size            int             `json:"size"`
	Margin          int             `json:"margin"`
	ErrorCorrection ErrorCorrection `json:"errorCorrectionLevel"`
	Colors          ColorScheme     `json:"colorScheme"`
}

// GenerationResult is an immutable record of one generated QR code.
type GenerationResult struct {
	ID         string         `json:"id"`
	SourceText string         `json:"text"`
	ImageData  []byte         `json:"imageData"`
	MIMEType   string         `json:"mimeType"`
	CreatedAt  time.Time      `json:"timestamp"`
	Title      string         `json:"title"`
	Kind       Kind           `json:"type"`
	Metadata   ResultMetadata `json:"metadata"`
}

// Validate performs the structural checks applied to stored results.
func (r *GenerationResult) Validate() error {
	switch {
	case r == nil:
		return Validation("result", "missing")
	case r.ID == "":
		return Validation("id", "empty")
	case r.SourceText == "":
		return Validation("text", "empty")
	case r.CreatedAt.IsZero():
		return Validation("timestamp", "missing")
	case !r.Kind.Valid():
		return Validation("type", "unknown kind "+string(r.Kind))
	case len(r.ImageData) == 0:
		return Validation("imageData", "empty")
	}
	return nil
}

// TaskStatus is the state of a single generation task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// GenerationTask is one unit of work inside a batch job.
type GenerationTask struct {
	ID          string        `json:"id"`
	InputText   string        `json:"text"`
	Kind        Kind          `json:"type"`
	Options     RenderOptions `json:"options"`
	Priority    int           `json:"priority"`
	Status      TaskStatus    `json:"status"`
	ResultID    string        `json:"resultId,omitempty"`
	Error       string        `json:"error,omitempty"`
	Attempts    int           `json:"attempts"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// Label returns a short human-readable identifier for progress display.
func (t *GenerationTask) Label() string {
	const max = 40
	runes := []rune(t.InputText)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return t.InputText
}

// JobStatus is the aggregate state of a batch job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the job has finished.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobSettings holds the per-job retry and persistence policy.
type JobSettings struct {
	RetryAttempts int           `json:"retryAttempts"`
	RetryDelay    time.Duration `json:"retryDelay"`
	TaskTimeout   time.Duration `json:"timeout"`
	SaveToHistory bool          `json:"saveToHistory"`
	ExportFormat  string        `json:"exportFormat,omitempty"`
}

// BatchJob is the persisted aggregate driving the scheduler.
type BatchJob struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Tasks       []*GenerationTask   `json:"tasks"`
	Status      JobStatus           `json:"status"`
	Concurrency int                 `json:"concurrency"`
	CreatedAt   time.Time           `json:"createdAt"`
	StartedAt   *time.Time          `json:"startedAt,omitempty"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
	Results     []*GenerationResult `json:"results"`
	Errors      []string            `json:"errors"`
	Settings    JobSettings         `json:"settings"`

	// Owner identifies the scheduler running the job. LeaseUntil is renewed
	// while it runs; once it passes, another scheduler may resume the job.
	Owner      string     `json:"owner,omitempty"`
	LeaseUntil *time.Time `json:"leaseUntil,omitempty"`
}

// LeaseHeld reports whether an owner other than self still holds the job at now.
func (j *BatchJob) LeaseHeld(self string, now time.Time) bool {
	return j.Owner != "" && j.Owner != self && j.LeaseUntil != nil && now.Before(*j.LeaseUntil)
}

// TaskCounts tallies tasks by status.
type TaskCounts struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Total returns the number of tasks counted.
func (c TaskCounts) Total() int {
	return c.Pending + c.Processing + c.Completed + c.Failed
}

// Counts tallies the job's tasks by status.
func (j *BatchJob) Counts() TaskCounts {
	var c TaskCounts
	for _, t := range j.Tasks {
		switch t.Status {
		case TaskStatusPending:
			c.Pending++
		case TaskStatusProcessing:
			c.Processing++
		case TaskStatusCompleted:
			c.Completed++
		case TaskStatusFailed:
			c.Failed++
		}
	}
	return c
}

// Task returns the task with the given id, or nil.
func (j *BatchJob) Task(id string) *GenerationTask {
	for _, t := range j.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Clone returns a copy safe to hand to another goroutine.
// Results are immutable and shared.
func (j *BatchJob) Clone() *BatchJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Tasks = make([]*GenerationTask, len(j.Tasks))
	for i, t := range j.Tasks {
		tc := *t
		c.Tasks[i] = &tc
	}
	c.Results = append([]*GenerationResult(nil), j.Results...)
	c.Errors = append([]string(nil), j.Errors...)
	return &c
}
