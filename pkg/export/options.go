package export

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// Format selects the container an export produces.
type Format string

const (
	FormatArchive   Format = "archive"
	FormatJSON      Format = "json"
	FormatCSV       Format = "csv"
	FormatPrintable Format = "printable"
	FormatGallery   Format = "gallery"
)

// Formats lists every supported format.
var Formats = []Format{FormatArchive, FormatJSON, FormatCSV, FormatPrintable, FormatGallery}

// Valid reports whether f is supported.
func (f Format) Valid() bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// Extension returns the file extension for f.
func (f Format) Extension() string {
	switch f {
	case FormatArchive:
		return "zip"
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	}
	return "html"
}

// MIMEType returns the content type for f.
func (f Format) MIMEType() string {
	switch f {
	case FormatArchive:
		return "application/zip"
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	}
	return "text/html; charset=utf-8"
}

// Compression selects the archive compression level.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionFast Compression = "fast"
	CompressionBest Compression = "best"
)

// Naming decides the file stem of each result inside an export.
type Naming struct {
	strategy string
	custom   func(index int, r *core.GenerationResult) string
}

// Built-in naming strategies.
var (
	// NamingSequential names files qr_001, qr_002, ...
	NamingSequential = Naming{strategy: "sequential"}
	// NamingTimestamp names files qr_20060102_150405_001 from each result's time.
	NamingTimestamp = Naming{strategy: "timestamp"}
)

// NamingCustom names files with fn. The index is zero-based. Output is
// sanitized; an empty result falls back to the sequential name.
func NamingCustom(fn func(index int, r *core.GenerationResult) string) Naming {
	return Naming{strategy: "custom", custom: fn}
}

// NamingByName returns the strategy called name, defaulting to sequential.
func NamingByName(name string) Naming {
	if strings.EqualFold(name, NamingTimestamp.strategy) {
		return NamingTimestamp
	}
	return NamingSequential
}

// String returns the strategy name.
func (n Naming) String() string {
	if n.strategy == "" {
		return NamingSequential.strategy
	}
	return n.strategy
}

// FileStem returns the sanitized stem for the result at index.
func (n Naming) FileStem(index int, r *core.GenerationResult) string {
	seq := fmt.Sprintf("qr_%03d", index+1)
	switch n.strategy {
	case "timestamp":
		return fmt.Sprintf("qr_%s_%03d", r.CreatedAt.UTC().Format("20060102_150405"), index+1)
	case "custom":
		if n.custom != nil {
			if stem := security.SanitizeFilename(n.custom(index, r)); stem != "" {
				return stem
			}
		}
	}
	return seq
}

// Stage is a phase of an export. Stages only move forward.
type Stage string

const (
	StagePreparing   Stage = "preparing"
	StageProcessing  Stage = "processing"
	StageCompressing Stage = "compressing"
	StageDownloading Stage = "downloading"
)

// Progress is delivered to Options.Progress.
type Progress struct {
	Current                int
	Total                  int
	Stage                  Stage
	EstimatedTimeRemaining time.Duration
}

// CancelToken cancels an export between results. It is safe for concurrent use.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken returns an active token.
func NewCancelToken() *CancelToken { return &CancelToken{} }

// Cancel requests cancellation.
func (t *CancelToken) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether Cancel was called.
func (t *CancelToken) Cancelled() bool { return t != nil && t.cancelled.Load() }

// Options controls a single export.
type Options struct {
	Format          Format
	Naming          Naming
	IncludeMetadata bool
	// Compression applies to archives only. Empty means fast.
	Compression Compression
	// Filename is the download name stem; it is sanitized.
	Filename string
	// Title heads HTML exports.
	Title    string
	Progress func(Progress)
	Cancel   *CancelToken
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = FormatArchive
	}
	if o.Compression == "" {
		o.Compression = CompressionFast
	}
	if o.Title == "" {
		o.Title = "QR Code Export"
	}
	return o
}
