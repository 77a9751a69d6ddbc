package export

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// Summary is written to summary.json inside an archive.
type Summary struct {
	Export Header         `json:"export"`
	Stats  Stats          `json:"stats"`
	Files  []SummaryEntry `json:"files"`
}

// SummaryEntry maps one archived image back to its result.
type SummaryEntry struct {
	Filename  string    `json:"filename"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Kind      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func flateLevel(c Compression) int {
	switch c {
	case CompressionBest:
		return flate.BestCompression
	case CompressionNone:
		return flate.NoCompression
	}
	return flate.BestSpeed
}

func writeArchive(x *exportRun) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	level := flateLevel(x.opts.Compression)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	method := zip.Deflate
	if x.opts.Compression == CompressionNone {
		method = zip.Store
	}
	modified := x.started

	add := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: modified})
		if err != nil {
			return fmt.Errorf("archive %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("archive %s: %w", name, err)
		}
		return nil
	}

	summary := Summary{
		Export: x.header(),
		Stats:  ComputeStats(x.results),
		Files:  make([]SummaryEntry, 0, len(x.results)),
	}
	for i, r := range x.results {
		if err := x.step(i); err != nil {
			return nil, err
		}
		image := "images/" + x.files[i] + "." + imageExtension(r.MIMEType)
		if err := add(image, r.ImageData); err != nil {
			return nil, err
		}
		if x.opts.IncludeMetadata {
			meta, err := json.MarshalIndent(Entry{GenerationResult: withoutImage(r), Derived: x.derived(i)}, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("archive metadata: %w", err)
			}
			if err := add("data/"+x.files[i]+".json", meta); err != nil {
				return nil, err
			}
		}
		summary.Files = append(summary.Files, SummaryEntry{
			Filename:  image,
			ID:        r.ID,
			Title:     r.Title,
			Kind:      string(r.Kind),
			Timestamp: r.CreatedAt,
		})
	}
	if err := x.checkpoint(); err != nil {
		return nil, err
	}
	x.report(StageCompressing, len(x.results))

	sj, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive summary: %w", err)
	}
	if err := add("summary.json", sj); err != nil {
		return nil, err
	}
	sc, err := encodeCSV(x, false)
	if err != nil {
		return nil, err
	}
	if err := add("summary.csv", sc); err != nil {
		return nil, err
	}
	if err := add("README.txt", []byte(readme(x, summary.Stats))); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive close: %w", err)
	}
	return buf.Bytes(), nil
}

func withoutImage(r *core.GenerationResult) *core.GenerationResult {
	c := *r
	c.ImageData = nil
	return &c
}

func readme(x *exportRun, s Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QR Code Export\n==============\n\n")
	fmt.Fprintf(&b, "Exported: %s\n", x.started.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "Version: %s\n", x.version)
	fmt.Fprintf(&b, "Codes: %d\n", s.Count)
	if !s.Oldest.IsZero() {
		fmt.Fprintf(&b, "Created between %s and %s\n",
			s.Oldest.UTC().Format("2006-01-02"), s.Newest.UTC().Format("2006-01-02"))
	}
	b.WriteString("\nContents:\n")
	b.WriteString("  images/       one image per QR code\n")
	if x.opts.IncludeMetadata {
		b.WriteString("  data/         one metadata file per QR code\n")
	}
	b.WriteString("  summary.json  machine-readable index\n")
	b.WriteString("  summary.csv   spreadsheet index\n")
	return b.String()
}
