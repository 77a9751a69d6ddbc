package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// Header opens a JSON export.
type Header struct {
	ExportedAt time.Time     `json:"exportedAt"`
	Version    string        `json:"version"`
	Count      int           `json:"count"`
	Options    HeaderOptions `json:"options"`
}

// HeaderOptions records the options an export was made with.
type HeaderOptions struct {
	Format          Format      `json:"format"`
	Naming          string      `json:"naming"`
	IncludeMetadata bool        `json:"includeMetadata"`
	Compression     Compression `json:"compression,omitempty"`
}

// Derived is metadata computed from a result at export time.
type Derived struct {
	Filename   string `json:"filename"`
	ImageBytes int    `json:"imageBytes"`
	TextLength int    `json:"textLength"`
}

// Entry is one result in a JSON export.
type Entry struct {
	*core.GenerationResult
	Derived *Derived `json:"derived,omitempty"`
}

// Document is the full JSON export.
type Document struct {
	Export  Header  `json:"export"`
	Results []Entry `json:"results"`
}

func (x *exportRun) header() Header {
	h := Header{
		ExportedAt: x.started.UTC(),
		Version:    x.version,
		Count:      len(x.results),
		Options: HeaderOptions{
			Format:          x.opts.Format,
			Naming:          x.opts.Naming.String(),
			IncludeMetadata: x.opts.IncludeMetadata,
		},
	}
	if x.opts.Format == FormatArchive {
		h.Options.Compression = x.opts.Compression
	}
	return h
}

func (x *exportRun) derived(i int) *Derived {
	r := x.results[i]
	return &Derived{
		Filename:   x.files[i] + "." + imageExtension(r.MIMEType),
		ImageBytes: len(r.ImageData),
		TextLength: utf8.RuneCountInString(r.SourceText),
	}
}

func writeJSON(x *exportRun) ([]byte, error) {
	doc := Document{Export: x.header(), Results: make([]Entry, 0, len(x.results))}
	for i, r := range x.results {
		if err := x.step(i); err != nil {
			return nil, err
		}
		e := Entry{GenerationResult: r}
		if x.opts.IncludeMetadata {
			e.Derived = x.derived(i)
		}
		doc.Results = append(doc.Results, e)
	}
	x.report(StageCompressing, len(x.results))
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return data, nil
}

// ParseJSON decodes a JSON export.
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json export: %w", err)
	}
	return &doc, nil
}

var (
	csvColumns         = []string{"index", "id", "type", "title", "text", "timestamp"}
	csvMetadataColumns = []string{"size", "errorCorrectionLevel", "colorScheme"}
)

func writeCSV(x *exportRun) ([]byte, error) {
	data, err := encodeCSV(x, true)
	if err != nil {
		return nil, err
	}
	x.report(StageCompressing, len(x.results))
	return data, nil
}

// encodeCSV writes the table. When stepping is false the caller has
// already passed each result boundary.
func encodeCSV(x *exportRun, stepping bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := csvColumns
	if x.opts.IncludeMetadata {
		header = append(append([]string{}, csvColumns...), csvMetadataColumns...)
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}

	for i, r := range x.results {
		if stepping {
			if err := x.step(i); err != nil {
				return nil, err
			}
		}
		row := []string{
			strconv.Itoa(i + 1),
			r.ID,
			string(r.Kind),
			r.Title,
			r.SourceText,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if x.opts.IncludeMetadata {
			colors, err := json.Marshal(r.Metadata.Colors)
			if err != nil {
				return nil, fmt.Errorf("encode csv: %w", err)
			}
			row = append(row,
				strconv.Itoa(r.Metadata.Size),
				string(r.Metadata.ErrorCorrection),
				string(colors))
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("encode csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}
