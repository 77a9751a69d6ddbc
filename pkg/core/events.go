package core

import "time"

// Event is the interface for all scheduler and generator events.
type Event interface {
	eventMarker()
}

// JobStarted is emitted when a batch job begins execution.
type JobStarted struct {
	JobID     string
	Name      string
	Total     int
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobFinished is emitted when a batch job reaches a terminal status.
type JobFinished struct {
	JobID     string
	Status    JobStatus
	Completed int
	Failed    int
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobFinished) eventMarker() {}

// TaskStarted is emitted for every attempt of a task.
type TaskStarted struct {
	JobID     string
	TaskID    string
	Kind      Kind
	Attempt   int
	Timestamp time.Time
}

func (*TaskStarted) eventMarker() {}

// TaskCompleted is emitted when a task produces a result.
type TaskCompleted struct {
	JobID     string
	TaskID    string
	Kind      Kind
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (*TaskCompleted) eventMarker() {}

// TaskRetrying is emitted when a failed attempt will be retried.
type TaskRetrying struct {
	JobID         string
	TaskID        string
	Kind          Kind
	Attempt       int
	Error         error
	NextAttemptAt time.Time
	Timestamp     time.Time
}

func (*TaskRetrying) eventMarker() {}

// TaskFailed is emitted when a task exhausts its retries.
type TaskFailed struct {
	JobID     string
	TaskID    string
	Kind      Kind
	Attempts  int
	Error     error
	Timestamp time.Time
}

func (*TaskFailed) eventMarker() {}

// GenerationCompleted is emitted by the generator for every successful encode.
type GenerationCompleted struct {
	ResultID  string
	Kind      Kind
	Duration  time.Duration
	Timestamp time.Time
}

func (*GenerationCompleted) eventMarker() {}

// GenerationFailed is emitted by the generator when validation or encoding fails.
type GenerationFailed struct {
	Kind      Kind
	Error     error
	Timestamp time.Time
}

func (*GenerationFailed) eventMarker() {}

// ExportCompleted is emitted by the bundler after a successful export.
type ExportCompleted struct {
	Format    string
	Count     int
	Size      int
	Duration  time.Duration
	Timestamp time.Time
}

func (*ExportCompleted) eventMarker() {}

// EventSink receives events without blocking the emitter.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit calls f(e).
func (f EventSinkFunc) Emit(e Event) { f(e) }
