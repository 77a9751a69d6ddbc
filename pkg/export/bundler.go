package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/platform"
	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// Version is written into export headers and manifests.
const Version = "1.0"

// Outcome is a finished export, ready to hand to a platform.Sink.
type Outcome struct {
	Filename string
	MIMEType string
	Data     []byte
	Count    int
	Size     int
}

// Bundler serializes generation results into export files.
type Bundler struct {
	logger  *slog.Logger
	sink    core.EventSink
	now     func() time.Time
	version string
}

// Option configures a Bundler.
type Option interface {
	apply(*Bundler)
}

type optionFunc func(*Bundler)

func (f optionFunc) apply(b *Bundler) { f(b) }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(b *Bundler) {
		if l != nil {
			b.logger = l
		}
	})
}

// WithEventSink receives ExportCompleted events.
func WithEventSink(s core.EventSink) Option {
	return optionFunc(func(b *Bundler) {
		b.sink = s
	})
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(b *Bundler) {
		if now != nil {
			b.now = now
		}
	})
}

// NewBundler creates a Bundler.
func NewBundler(opts ...Option) *Bundler {
	b := &Bundler{
		logger:  slog.Default(),
		now:     time.Now,
		version: Version,
	}
	for _, opt := range opts {
		opt.apply(b)
	}
	return b
}

// formatWriter builds the file body. It must call step once per result
// before processing it.
type formatWriter func(x *exportRun) ([]byte, error)

// Export serializes results according to opts. On error or cancellation
// no data is returned.
func (b *Bundler) Export(ctx context.Context, results []*core.GenerationResult, opts Options) (*Outcome, error) {
	opts = opts.withDefaults()
	if !opts.Format.Valid() {
		return nil, core.Validation("format", "unsupported format "+string(opts.Format))
	}

	items := make([]*core.GenerationResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			items = append(items, r)
		}
	}
	if len(items) == 0 {
		return nil, core.Validation("results", "nothing to export")
	}

	start := b.now()
	x := &exportRun{
		ctx:     ctx,
		opts:    opts,
		results: items,
		files:   assignFilenames(items, opts.Naming),
		started: start,
		now:     b.now,
		version: b.version,
	}
	x.report(StagePreparing, 0)
	if err := x.checkpoint(); err != nil {
		return nil, err
	}

	var write formatWriter
	switch opts.Format {
	case FormatArchive:
		write = writeArchive
	case FormatJSON:
		write = writeJSON
	case FormatCSV:
		write = writeCSV
	case FormatPrintable:
		write = writePrintable
	case FormatGallery:
		write = writeGallery
	}

	data, err := write(x)
	if err != nil {
		if !core.IsCancelled(err) {
			b.logger.Error("export failed", "format", opts.Format, "count", len(items), "error", err)
		}
		return nil, err
	}
	// Last chance to cancel before the data leaves the bundler.
	if err := x.checkpoint(); err != nil {
		return nil, err
	}
	x.report(StageDownloading, len(items))

	out := &Outcome{
		Filename: outputName(opts, start),
		MIMEType: opts.Format.MIMEType(),
		Data:     data,
		Count:    len(items),
		Size:     len(data),
	}
	elapsed := b.now().Sub(start)
	b.logger.Info("export completed",
		"format", opts.Format,
		"count", out.Count,
		"bytes", out.Size,
		"duration", elapsed)
	if b.sink != nil {
		b.sink.Emit(&core.ExportCompleted{
			Format:    string(opts.Format),
			Count:     out.Count,
			Size:      out.Size,
			Duration:  elapsed,
			Timestamp: b.now(),
		})
	}
	return out, nil
}

// Deliver hands the outcome to the sink as a download.
func Deliver(ctx context.Context, out *Outcome, sink platform.Sink) error {
	if out == nil {
		return errors.New("export: nil outcome")
	}
	if err := sink.DownloadFile(ctx, out.Data, out.Filename); err != nil {
		return fmt.Errorf("deliver %s: %w", out.Filename, err)
	}
	return nil
}

func outputName(opts Options, at time.Time) string {
	stem := security.SanitizeFilename(opts.Filename)
	if stem == "" {
		stem = "qr-codes-" + at.Format("2006-01-02")
	}
	return stem + "." + opts.Format.Extension()
}

// exportRun carries the state of one Export call.
type exportRun struct {
	ctx     context.Context
	opts    Options
	results []*core.GenerationResult
	files   []string
	started time.Time
	now     func() time.Time
	version string

	stage Stage
}

var stageOrder = map[Stage]int{
	StagePreparing:   0,
	StageProcessing:  1,
	StageCompressing: 2,
	StageDownloading: 3,
}

// checkpoint returns a CancelledError if the context or token was cancelled.
func (x *exportRun) checkpoint() error {
	if x.ctx.Err() != nil || x.opts.Cancel.Cancelled() {
		return core.Cancelled("export")
	}
	return nil
}

// step is called at each result boundary.
func (x *exportRun) step(i int) error {
	if err := x.checkpoint(); err != nil {
		return err
	}
	x.report(StageProcessing, i)
	return nil
}

// report forwards progress, dropping any attempt to move back a stage.
func (x *exportRun) report(stage Stage, current int) {
	if x.stage != "" && stageOrder[stage] < stageOrder[x.stage] {
		return
	}
	x.stage = stage
	if x.opts.Progress == nil {
		return
	}
	total := len(x.results)
	var eta time.Duration
	if current > 0 && current < total {
		perItem := x.now().Sub(x.started) / time.Duration(current)
		eta = perItem * time.Duration(total-current)
	}
	x.opts.Progress(Progress{
		Current:                current,
		Total:                  total,
		Stage:                  stage,
		EstimatedTimeRemaining: eta,
	})
}

// assignFilenames picks a unique stem per result. Later duplicates get
// a numeric suffix.
func assignFilenames(results []*core.GenerationResult, naming Naming) []string {
	names := make([]string, len(results))
	seen := make(map[string]bool, len(results))
	for i, r := range results {
		stem := naming.FileStem(i, r)
		name := stem
		for n := 2; seen[name]; n++ {
			name = fmt.Sprintf("%s_%d", stem, n)
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

func imageExtension(mime string) string {
	switch mime {
	case "image/png", "":
		return "png"
	case "image/svg+xml":
		return "svg"
	case "image/jpeg":
		return "jpg"
	}
	return "bin"
}
