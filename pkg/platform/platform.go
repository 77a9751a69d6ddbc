// Package platform holds the side-effecting collaborators the core hands
// finished work to: file downloads, clipboard writes and notifications.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// Sink performs platform side effects. Callers treat every method as best
// effort: failures are reported, never fatal.
type Sink interface {
	DownloadFile(ctx context.Context, data []byte, filename string) error
	CopyImage(ctx context.Context, data []byte) error
	CopyText(ctx context.Context, text string) error
	Notify(ctx context.Context, title, message string) error
}

// DirSink saves downloads into a directory. Clipboard writes and
// notifications are logged, since a headless process has neither.
type DirSink struct {
	dir    string
	logger *slog.Logger
}

// NewDirSink creates a sink writing into dir, creating it if needed.
func NewDirSink(dir string, logger *slog.Logger) (*DirSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &DirSink{dir: dir, logger: logger}, nil
}

// Dir returns the output directory.
func (s *DirSink) Dir() string { return s.dir }

// DownloadFile writes data under a sanitized form of filename. The
// extension is kept; the stem is reduced to [A-Za-z0-9_-].
func (s *DirSink) DownloadFile(ctx context.Context, data []byte, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := safeName(filename)
	path := filepath.Join(s.dir, name)

	// Write to a temp file first so a failed write never leaves a partial
	// download under the final name.
	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("download %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("download %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("download %s: %w", name, err)
	}

	s.logger.Info("file saved", "path", path, "bytes", len(data))
	return nil
}

// CopyImage logs the clipboard request.
func (s *DirSink) CopyImage(_ context.Context, data []byte) error {
	s.logger.Info("image copied to clipboard", "bytes", len(data))
	return nil
}

// CopyText logs the clipboard request.
func (s *DirSink) CopyText(_ context.Context, text string) error {
	s.logger.Info("text copied to clipboard", "length", len(text))
	return nil
}

// Notify logs the notification.
func (s *DirSink) Notify(_ context.Context, title, message string) error {
	s.logger.Info("notification", "title", title, "message", message)
	return nil
}

func safeName(filename string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := security.SanitizeFilename(strings.TrimSuffix(base, ext))
	if stem == "" {
		stem = "download"
	}
	return stem + cleanExt(ext)
}

func cleanExt(ext string) string {
	if ext == "" {
		return ""
	}
	clean := security.SanitizeFilename(strings.TrimPrefix(ext, "."))
	if clean == "" {
		return ""
	}
	return "." + clean
}

// Notifier wraps a Sink so failures are logged instead of returned.
type Notifier struct {
	Sink   Sink
	Logger *slog.Logger
}

func (n Notifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

// Notify shows a notification, logging any failure.
func (n Notifier) Notify(ctx context.Context, title, message string) {
	if n.Sink == nil {
		return
	}
	if err := n.Sink.Notify(ctx, title, message); err != nil {
		n.logger().Warn("notification failed", "title", title, "error", err)
	}
}

// CopyImage copies image data, logging any failure.
func (n Notifier) CopyImage(ctx context.Context, data []byte) {
	if n.Sink == nil {
		return
	}
	if err := n.Sink.CopyImage(ctx, data); err != nil {
		n.logger().Warn("copy image failed", "error", err)
	}
}

// CopyText copies text, logging any failure.
func (n Notifier) CopyText(ctx context.Context, text string) {
	if n.Sink == nil {
		return
	}
	if err := n.Sink.CopyText(ctx, text); err != nil {
		n.logger().Warn("copy to clipboard failed", "error", err)
	}
}
