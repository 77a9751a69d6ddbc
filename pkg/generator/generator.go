package generator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// Generator wraps an encoder with validation, titling and statistics.
type Generator struct {
	enc    core.Encoder
	logger *slog.Logger
	sink   core.EventSink
	now    func() time.Time

	mu    sync.Mutex
	stats Statistics
}

// Option configures a Generator.
type Option interface {
	apply(*Generator)
}

type optionFunc func(*Generator)

func (f optionFunc) apply(g *Generator) { f(g) }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	})
}

// WithEventSink receives GenerationCompleted and GenerationFailed events.
func WithEventSink(s core.EventSink) Option {
	return optionFunc(func(g *Generator) {
		g.sink = s
	})
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(g *Generator) {
		if now != nil {
			g.now = now
		}
	})
}

// New creates a Generator around enc.
func New(enc core.Encoder, opts ...Option) *Generator {
	g := &Generator{
		enc:    enc,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt.apply(g)
	}
	return g
}

// Generate validates text, renders it and returns the result record.
// An empty kind is treated as text.
func (g *Generator) Generate(ctx context.Context, text string, opts core.RenderOptions, kind core.Kind) (*core.GenerationResult, error) {
	start := g.now()
	if kind == "" {
		kind = core.KindText
	}

	res, err := g.generate(ctx, text, opts, kind)
	elapsed := g.now().Sub(start)
	if err != nil {
		g.record(elapsed, false)
		g.logger.Debug("generation failed", "kind", kind, "error", err)
		g.emit(&core.GenerationFailed{Kind: kind, Error: err, Timestamp: g.now()})
		return nil, err
	}

	g.record(elapsed, true)
	g.emit(&core.GenerationCompleted{ResultID: res.ID, Kind: kind, Duration: elapsed, Timestamp: g.now()})
	return res, nil
}

func (g *Generator) generate(ctx context.Context, text string, opts core.RenderOptions, kind core.Kind) (*core.GenerationResult, error) {
	if !kind.Valid() {
		return nil, core.Validation("kind", "unknown kind "+string(kind))
	}
	if err := security.ValidateText(text); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()
	if !opts.ErrorCorrection.Valid() {
		return nil, core.Validation("errorCorrectionLevel", "must be one of L, M, Q, H")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := g.enc.Encode(ctx, text, opts)
	if err != nil {
		var ee *core.EncodingError
		if errors.As(err, &ee) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, core.Encoding(err, false)
	}
	if img == nil || len(img.Data) == 0 {
		return nil, core.Encoding(errors.New("encoder returned no image"), false)
	}

	return &core.GenerationResult{
		ID:         uuid.New().String(),
		SourceText: text,
		ImageData:  img.Data,
		MIMEType:   img.MIMEType,
		CreatedAt:  g.now().UTC(),
		Title:      Title(kind, text),
		Kind:       kind,
		Metadata: core.ResultMetadata{
			Size:            opts.Size,
			Margin:          opts.Margin,
			ErrorCorrection: opts.ErrorCorrection,
			Colors:          core.ColorScheme{Dark: opts.Foreground, Light: opts.Background},
		},
	}, nil
}

// GeneratePayload validates p, encodes it and generates its QR code.
func (g *Generator) GeneratePayload(ctx context.Context, p Payload, opts core.RenderOptions) (*core.GenerationResult, error) {
	if err := p.Validate(); err != nil {
		g.record(0, false)
		g.emit(&core.GenerationFailed{Kind: p.Kind(), Error: err, Timestamp: g.now()})
		return nil, err
	}
	return g.Generate(ctx, p.Encode(), opts, p.Kind())
}

// GenerateWiFi generates a network-join code.
func (g *Generator) GenerateWiFi(ctx context.Context, p WiFiPayload, opts core.RenderOptions) (*core.GenerationResult, error) {
	return g.GeneratePayload(ctx, p, opts)
}

// GenerateContact generates a vCard code.
func (g *Generator) GenerateContact(ctx context.Context, p ContactPayload, opts core.RenderOptions) (*core.GenerationResult, error) {
	return g.GeneratePayload(ctx, p, opts)
}

// GenerateCalendarEvent generates a VEVENT code.
func (g *Generator) GenerateCalendarEvent(ctx context.Context, p CalendarPayload, opts core.RenderOptions) (*core.GenerationResult, error) {
	return g.GeneratePayload(ctx, p, opts)
}

// GenerateEmail generates a mailto code.
func (g *Generator) GenerateEmail(ctx context.Context, p EmailPayload, opts core.RenderOptions) (*core.GenerationResult, error) {
	return g.GeneratePayload(ctx, p, opts)
}

// GeneratePhone generates a tel code.
func (g *Generator) GeneratePhone(ctx context.Context, p PhonePayload, opts core.RenderOptions) (*core.GenerationResult, error) {
	return g.GeneratePayload(ctx, p, opts)
}

// GenerateSMS generates an SMSTO code.
func (g *Generator) GenerateSMS(ctx context.Context, p SMSPayload, opts core.RenderOptions) (*core.GenerationResult, error) {
	return g.GeneratePayload(ctx, p, opts)
}

func (g *Generator) emit(e core.Event) {
	if g.sink != nil {
		g.sink.Emit(e)
	}
}
