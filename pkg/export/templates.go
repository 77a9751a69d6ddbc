package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/kv"
	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// TemplatesKey is the kv key holding saved presets.
const TemplatesKey = "exportTemplates"

var (
	// ErrBuiltinTemplate is returned when saving over or deleting a built-in preset.
	ErrBuiltinTemplate = errors.New("export: built-in template cannot be modified")
	// ErrTemplateNotFound is returned for unknown preset names.
	ErrTemplateNotFound = errors.New("export: template not found")
)

// Preset is a named, reusable set of export options.
type Preset struct {
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	Format          Format      `json:"format"`
	Naming          string      `json:"naming"`
	IncludeMetadata bool        `json:"includeMetadata"`
	Compression     Compression `json:"compression,omitempty"`
	Builtin         bool        `json:"-"`
	CreatedAt       time.Time   `json:"createdAt,omitzero"`
}

// Options converts the preset into export options.
func (p Preset) Options() Options {
	return Options{
		Format:          p.Format,
		Naming:          NamingByName(p.Naming),
		IncludeMetadata: p.IncludeMetadata,
		Compression:     p.Compression,
	}
}

var builtinPresets = []Preset{
	{Name: "default", Description: "Images with summaries", Format: FormatArchive, Naming: "sequential", Compression: CompressionFast, Builtin: true},
	{Name: "print", Description: "Printable sheet", Format: FormatPrintable, Naming: "sequential", Builtin: true},
	{Name: "archive-full", Description: "Images, per-code metadata and summaries", Format: FormatArchive, Naming: "timestamp", IncludeMetadata: true, Compression: CompressionBest, Builtin: true},
}

func builtinPreset(name string) (Preset, bool) {
	for _, p := range builtinPresets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// TemplateStore persists user presets alongside the built-ins.
type TemplateStore struct {
	backend kv.Store
	now     func() time.Time
	mu      sync.Mutex
}

// NewTemplateStore returns a TemplateStore on backend.
func NewTemplateStore(backend kv.Store) *TemplateStore {
	return &TemplateStore{backend: backend, now: time.Now}
}

func (t *TemplateStore) load(ctx context.Context) (map[string]Preset, error) {
	vals, err := t.backend.Get(ctx, TemplatesKey)
	if err != nil {
		return nil, err
	}
	saved := make(map[string]Preset)
	raw, ok := vals[TemplatesKey]
	if !ok {
		return saved, nil
	}
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, core.Storage("load templates", err)
	}
	return saved, nil
}

func (t *TemplateStore) save(ctx context.Context, saved map[string]Preset) error {
	raw, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	return t.backend.Set(ctx, map[string][]byte{TemplatesKey: raw})
}

// Save stores p under its name, replacing any earlier user preset.
func (t *TemplateStore) Save(ctx context.Context, p Preset) error {
	p.Name = strings.TrimSpace(p.Name)
	if err := security.ValidateJobName(p.Name); err != nil {
		return err
	}
	if _, ok := builtinPreset(p.Name); ok {
		return ErrBuiltinTemplate
	}
	if p.Format == "" {
		p.Format = FormatArchive
	}
	if !p.Format.Valid() {
		return core.Validation("format", "unsupported format "+string(p.Format))
	}
	p.Naming = NamingByName(p.Naming).String()
	p.Builtin = false
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	saved, err := t.load(ctx)
	if err != nil {
		return err
	}
	saved[p.Name] = p
	return t.save(ctx, saved)
}

// List returns the built-ins followed by user presets sorted by name.
func (t *TemplateStore) List(ctx context.Context) ([]Preset, error) {
	saved, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	out := append([]Preset{}, builtinPresets...)
	names := make([]string, 0, len(saved))
	for name := range saved {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, saved[name])
	}
	return out, nil
}

// Get returns the preset called name.
func (t *TemplateStore) Get(ctx context.Context, name string) (Preset, error) {
	if p, ok := builtinPreset(name); ok {
		return p, nil
	}
	saved, err := t.load(ctx)
	if err != nil {
		return Preset{}, err
	}
	p, ok := saved[name]
	if !ok {
		return Preset{}, ErrTemplateNotFound
	}
	return p, nil
}

// Delete removes a user preset. Built-ins cannot be deleted.
func (t *TemplateStore) Delete(ctx context.Context, name string) error {
	if _, ok := builtinPreset(name); ok {
		return ErrBuiltinTemplate
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	saved, err := t.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := saved[name]; !ok {
		return ErrTemplateNotFound
	}
	delete(saved, name)
	return t.save(ctx, saved)
}
