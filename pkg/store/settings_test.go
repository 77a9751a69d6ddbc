package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/kv"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestGetSettings_Defaults(t *testing.T) {
	s, _, _ := newTestStore(t)
	got, err := s.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), got)
	assert.Equal(t, core.DefaultRenderOptions(), got.RenderOptions())
}

func TestGetSettings_MergesPartialRecord(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)
	require.NoError(t, backend.Store.Set(ctx, map[string][]byte{SettingsKey: []byte(`{"defaultSize":512}`)}))

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 512, got.Size)
	assert.Equal(t, DefaultHistoryLimit, got.HistoryLimit)
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	got, err := s.UpdateSettings(ctx, SettingsPatch{
		ErrorCorrection: Ptr(core.CorrectionHigh),
		SaveHistory:     Ptr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, core.CorrectionHigh, got.ErrorCorrection)
	assert.False(t, got.SaveHistory)
	assert.Equal(t, core.DefaultSize, got.Size)

	again, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	require.NoError(t, s.ResetSettings(ctx))
	reset, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), reset)
}

func TestUpdateSettings_Validation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	patches := []SettingsPatch{
		{Size: Ptr(0)},
		{Margin: Ptr(-1)},
		{ErrorCorrection: Ptr(core.ErrorCorrection("Z"))},
		{HistoryLimit: Ptr(0)},
		{BatchConcurrency: Ptr(11)},
	}
	for _, p := range patches {
		_, err := s.UpdateSettings(ctx, p)
		assert.True(t, core.IsValidation(err))
	}

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), got)
}

func TestWithDefaultSettings(t *testing.T) {
	ctx := context.Background()
	d := DefaultSettings()
	d.HistoryLimit = 20
	d.AnalyticsEnabled = true

	s := New(kv.NewMemory(0), WithDefaultSettings(d))
	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, got.HistoryLimit)
	assert.True(t, got.AnalyticsEnabled)

	bad := DefaultSettings()
	bad.HistoryLimit = 0
	s = New(kv.NewMemory(0), WithDefaultSettings(bad))
	got, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryLimit, got.HistoryLimit)
}
