package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// fakeEncoder records calls and returns a fixed image.
type fakeEncoder struct {
	mu    sync.Mutex
	calls []core.RenderOptions
	err   error
}

func (f *fakeEncoder) Encode(_ context.Context, _ string, opts core.RenderOptions) (*core.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &core.Image{Data: []byte("png"), MIMEType: "image/png"}, nil
}

func (f *fakeEncoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestGenerate_BuildsResult(t *testing.T) {
	enc := &fakeEncoder{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := New(enc, WithClock(func() time.Time { return now }))

	res, err := g.Generate(context.Background(), "https://www.example.com/path", core.RenderOptions{}, core.KindURL)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "https://www.example.com/path", res.SourceText)
	assert.Equal(t, "example.com", res.Title)
	assert.Equal(t, core.KindURL, res.Kind)
	assert.Equal(t, now, res.CreatedAt)
	assert.Equal(t, []byte("png"), res.ImageData)
	assert.Equal(t, core.ResultMetadata{
		Size:            core.DefaultSize,
		Margin:          core.DefaultMargin,
		ErrorCorrection: core.CorrectionMedium,
		Colors:          core.ColorScheme{Dark: "#000000", Light: "#ffffff"},
	}, res.Metadata)
	require.NoError(t, res.Validate())
}

func TestGenerate_ValidationSkipsEncoder(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind core.Kind
		opts core.RenderOptions
	}{
		{"empty", "", core.KindText, core.RenderOptions{}},
		{"whitespace", "   ", core.KindText, core.RenderOptions{}},
		{"too long", strings.Repeat("a", 4297), core.KindText, core.RenderOptions{}},
		{"null byte", "a\x00b", core.KindText, core.RenderOptions{}},
		{"unknown kind", "hi", core.Kind("barcode"), core.RenderOptions{}},
		{"bad level", "hi", core.KindText, core.RenderOptions{ErrorCorrection: "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &fakeEncoder{}
			g := New(enc)
			_, err := g.Generate(context.Background(), tt.text, tt.opts, tt.kind)
			require.Error(t, err)
			assert.True(t, core.IsValidation(err))
			assert.Equal(t, 0, enc.callCount())
		})
	}
}

func TestGenerate_MaxLengthAccepted(t *testing.T) {
	g := New(&fakeEncoder{})
	_, err := g.Generate(context.Background(), strings.Repeat("a", 4296), core.RenderOptions{}, core.KindText)
	assert.NoError(t, err)
}

func TestGenerate_EncoderErrors(t *testing.T) {
	t.Run("generic failure wrapped", func(t *testing.T) {
		g := New(&fakeEncoder{err: errors.New("boom")})
		_, err := g.Generate(context.Background(), "hi", core.RenderOptions{}, core.KindText)

		var ee *core.EncodingError
		require.True(t, errors.As(err, &ee))
		assert.False(t, ee.TooLong)
	})

	t.Run("too long preserved", func(t *testing.T) {
		g := New(&fakeEncoder{err: core.Encoding(errors.New("content too long to encode"), true)})
		_, err := g.Generate(context.Background(), "hi", core.RenderOptions{}, core.KindText)

		var ee *core.EncodingError
		require.True(t, errors.As(err, &ee))
		assert.True(t, ee.TooLong)
	})
}

func TestGenerate_EmptyKindIsText(t *testing.T) {
	g := New(&fakeEncoder{})
	res, err := g.Generate(context.Background(), "hello", core.RenderOptions{}, "")
	require.NoError(t, err)
	assert.Equal(t, core.KindText, res.Kind)
}

func TestStatistics(t *testing.T) {
	var tick time.Time
	clock := func() time.Time {
		tick = tick.Add(10 * time.Millisecond)
		return tick
	}
	enc := &fakeEncoder{}
	g := New(enc, WithClock(clock))
	ctx := context.Background()

	_, err := g.Generate(ctx, "a", core.RenderOptions{}, core.KindText)
	require.NoError(t, err)
	_, err = g.Generate(ctx, "b", core.RenderOptions{}, core.KindText)
	require.NoError(t, err)
	_, err = g.Generate(ctx, "", core.RenderOptions{}, core.KindText)
	require.Error(t, err)

	s := g.Statistics()
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 1, s.Failures)
	assert.Greater(t, s.TotalTime, time.Duration(0))
	assert.Equal(t, s.TotalTime/2, s.AverageTime)

	g.ResetStatistics()
	assert.Equal(t, Statistics{}, g.Statistics())
}

func TestGenerate_EmitsEvents(t *testing.T) {
	var mu sync.Mutex
	var events []core.Event
	sink := core.EventSinkFunc(func(e core.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	g := New(&fakeEncoder{}, WithEventSink(sink))
	ctx := context.Background()

	_, _ = g.Generate(ctx, "ok", core.RenderOptions{}, core.KindText)
	_, _ = g.Generate(ctx, "", core.RenderOptions{}, core.KindText)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.IsType(t, &core.GenerationCompleted{}, events[0])
	assert.IsType(t, &core.GenerationFailed{}, events[1])
}

func TestGenerateWiFi(t *testing.T) {
	enc := &fakeEncoder{}
	g := New(enc)
	ctx := context.Background()

	res, err := g.GenerateWiFi(ctx, WiFiPayload{SSID: "Cafe;Net", Password: "p@ss"}, core.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, `WIFI:T:WPA;S:Cafe\;Net;P:p@ss;;`, res.SourceText)
	assert.Equal(t, "WiFi: Cafe;Net", res.Title)
	assert.Equal(t, core.KindWiFi, res.Kind)

	_, err = g.GenerateWiFi(ctx, WiFiPayload{SSID: "Cafe"}, core.RenderOptions{})
	assert.True(t, core.IsValidation(err), "password required for WPA")

	res, err = g.GenerateWiFi(ctx, WiFiPayload{SSID: "Open", Security: SecurityOpen, Hidden: true}, core.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "WIFI:T:nopass;S:Open;H:true;;", res.SourceText)

	assert.Equal(t, 2, enc.callCount())
}

func TestGenerateContact(t *testing.T) {
	g := New(&fakeEncoder{})
	res, err := g.GenerateContact(context.Background(), ContactPayload{
		Name:         "Doe, Jane",
		Phone:        "+1 555 0100",
		Email:        "jane@example.com",
		Organization: "Acme",
	}, core.RenderOptions{})
	require.NoError(t, err)

	assert.Equal(t, "BEGIN:VCARD\nVERSION:3.0\nFN:Doe\\, Jane\nORG:Acme\nTEL:+1 555 0100\nEMAIL:jane@example.com\nEND:VCARD", res.SourceText)
	assert.Equal(t, `Contact: Doe\, Jane`, res.Title)

	_, err = g.GenerateContact(context.Background(), ContactPayload{Name: "x", Email: "nope"}, core.RenderOptions{})
	assert.True(t, core.IsValidation(err))
}

func TestGenerateCalendarEvent(t *testing.T) {
	g := New(&fakeEncoder{})
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	res, err := g.GenerateCalendarEvent(context.Background(), CalendarPayload{
		Title:    "Standup",
		Start:    start,
		Location: "Room 1",
	}, core.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VEVENT\nSUMMARY:Standup\nDTSTART:20240310T090000Z\nDTEND:20240310T100000Z\nLOCATION:Room 1\nEND:VEVENT", res.SourceText)
	assert.Equal(t, "Event: Standup", res.Title)

	_, err = g.GenerateCalendarEvent(context.Background(), CalendarPayload{
		Title: "Backwards", Start: start, End: start.Add(-time.Hour),
	}, core.RenderOptions{})
	assert.True(t, core.IsValidation(err))
}

func TestGenerateEmailPhoneSMS(t *testing.T) {
	g := New(&fakeEncoder{})
	ctx := context.Background()

	res, err := g.GenerateEmail(ctx, EmailPayload{To: "a@b.co", Subject: "Hi there"}, core.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mailto:a@b.co?subject=Hi%20there", res.SourceText)
	assert.Equal(t, "Email: a@b.co", res.Title)

	res, err = g.GeneratePhone(ctx, PhonePayload{Number: "+1 (555) 010-0000"}, core.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "tel:+15550100000", res.SourceText)
	assert.Equal(t, "Phone: +15550100000", res.Title)

	res, err = g.GenerateSMS(ctx, SMSPayload{Number: "555 0100", Message: "on my way"}, core.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "SMSTO:5550100:on my way", res.SourceText)
	assert.Equal(t, "SMS: 5550100", res.Title)

	_, err = g.GeneratePhone(ctx, PhonePayload{Number: "call me"}, core.RenderOptions{})
	assert.True(t, core.IsValidation(err))
	_, err = g.GenerateEmail(ctx, EmailPayload{To: ""}, core.RenderOptions{})
	assert.True(t, core.IsValidation(err))
}

func TestURLPayload_Validate(t *testing.T) {
	assert.NoError(t, URLPayload{URL: "https://example.com"}.Validate())
	assert.Error(t, URLPayload{URL: "example.com"}.Validate())
	assert.Error(t, URLPayload{URL: "ftp://example.com"}.Validate())
}
