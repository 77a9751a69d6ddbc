package store

import (
	"context"
	"encoding/json"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// DefaultHistoryLimit caps the rolling history list.
const DefaultHistoryLimit = 100

// maxHistoryLimit bounds what a user may configure.
const maxHistoryLimit = 1000

// Settings are the user preferences persisted under SettingsKey.
type Settings struct {
	Size             int                  `json:"defaultSize"`
	Margin           int                  `json:"defaultMargin"`
	Foreground       string               `json:"foregroundColor"`
	Background       string               `json:"backgroundColor"`
	ErrorCorrection  core.ErrorCorrection `json:"errorCorrectionLevel"`
	HistoryLimit     int                  `json:"historyLimit"`
	SaveHistory      bool                 `json:"saveHistory"`
	AnalyticsEnabled bool                 `json:"analyticsEnabled"`
	ExportFormat     string               `json:"exportFormat"`
	BatchConcurrency int                  `json:"batchConcurrency"`
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		Size:             core.DefaultSize,
		Margin:           core.DefaultMargin,
		Foreground:       core.DefaultForeground,
		Background:       core.DefaultBackground,
		ErrorCorrection:  core.DefaultCorrection,
		HistoryLimit:     DefaultHistoryLimit,
		SaveHistory:      true,
		AnalyticsEnabled: false,
		ExportFormat:     "archive",
		BatchConcurrency: 3,
	}
}

// RenderOptions returns the render defaults the settings describe.
func (s Settings) RenderOptions() core.RenderOptions {
	return core.RenderOptions{
		Size:            s.Size,
		Margin:          s.Margin,
		Foreground:      s.Foreground,
		Background:      s.Background,
		ErrorCorrection: s.ErrorCorrection,
	}
}

func (s Settings) validate() error {
	switch {
	case s.Size <= 0:
		return core.Validation("defaultSize", "must be positive")
	case s.Margin < 0:
		return core.Validation("defaultMargin", "must not be negative")
	case !s.ErrorCorrection.Valid():
		return core.Validation("errorCorrectionLevel", "must be one of L, M, Q, H")
	case s.HistoryLimit < 1 || s.HistoryLimit > maxHistoryLimit:
		return core.Validation("historyLimit", "must be between 1 and 1000")
	case s.BatchConcurrency < 1 || s.BatchConcurrency > security.MaxConcurrency:
		return core.Validation("batchConcurrency", "must be between 1 and 10")
	}
	return nil
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	Size             *int
	Margin           *int
	Foreground       *string
	Background       *string
	ErrorCorrection  *core.ErrorCorrection
	HistoryLimit     *int
	SaveHistory      *bool
	AnalyticsEnabled *bool
	ExportFormat     *string
	BatchConcurrency *int
}

func (p SettingsPatch) applyTo(s *Settings) {
	if p.Size != nil {
		s.Size = *p.Size
	}
	if p.Margin != nil {
		s.Margin = *p.Margin
	}
	if p.Foreground != nil {
		s.Foreground = *p.Foreground
	}
	if p.Background != nil {
		s.Background = *p.Background
	}
	if p.ErrorCorrection != nil {
		s.ErrorCorrection = *p.ErrorCorrection
	}
	if p.HistoryLimit != nil {
		s.HistoryLimit = *p.HistoryLimit
	}
	if p.SaveHistory != nil {
		s.SaveHistory = *p.SaveHistory
	}
	if p.AnalyticsEnabled != nil {
		s.AnalyticsEnabled = *p.AnalyticsEnabled
	}
	if p.ExportFormat != nil {
		s.ExportFormat = *p.ExportFormat
	}
	if p.BatchConcurrency != nil {
		s.BatchConcurrency = *p.BatchConcurrency
	}
}

// GetSettings returns stored settings merged over the defaults.
func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	out := s.defaults
	raw, ok, err := s.getRaw(ctx, SettingsKey)
	if err != nil || !ok {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Warn("stored settings are unreadable, using defaults", "error", err)
		return s.defaults, nil
	}
	return out, nil
}

// UpdateSettings applies patch, validates the result and persists it.
func (s *Store) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	cur, err := s.GetSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	patch.applyTo(&cur)
	if err := cur.validate(); err != nil {
		return Settings{}, err
	}
	if err := s.Set(ctx, map[string]any{SettingsKey: cur}); err != nil {
		return Settings{}, err
	}
	return cur, nil
}

// ResetSettings removes stored settings so defaults apply again.
func (s *Store) ResetSettings(ctx context.Context) error {
	return s.Remove(ctx, SettingsKey)
}

// Ptr is a convenience for building a SettingsPatch.
func Ptr[T any](v T) *T { return &v }
