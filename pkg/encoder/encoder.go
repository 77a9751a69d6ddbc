// Package encoder adapts github.com/skip2/go-qrcode to core.Encoder.
package encoder

import (
	"context"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// MIMEType is the format every image is rendered in.
const MIMEType = "image/png"

// QRCode renders PNG symbols. The zero value is ready to use.
//
// go-qrcode draws a fixed four-module quiet zone; any positive margin keeps
// it and a zero margin removes it.
type QRCode struct{}

// New returns a QRCode encoder.
func New() *QRCode { return &QRCode{} }

// Encode renders text at opts.Size pixels.
func (QRCode) Encode(ctx context.Context, text string, opts core.RenderOptions) (*core.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	level, err := recoveryLevel(opts.ErrorCorrection)
	if err != nil {
		return nil, err
	}
	fg, err := ParseHexColor(opts.Foreground)
	if err != nil {
		return nil, core.Validation("foreground", err.Error())
	}
	bg, err := ParseHexColor(opts.Background)
	if err != nil {
		return nil, core.Validation("background", err.Error())
	}

	q, err := qrcode.New(text, level)
	if err != nil {
		return nil, core.Encoding(err, isTooLong(err))
	}
	q.ForegroundColor = fg
	q.BackgroundColor = bg
	q.DisableBorder = opts.Margin == 0

	data, err := q.PNG(opts.Size)
	if err != nil {
		return nil, core.Encoding(err, false)
	}
	return &core.Image{Data: data, MIMEType: MIMEType}, nil
}

func recoveryLevel(ec core.ErrorCorrection) (qrcode.RecoveryLevel, error) {
	switch ec {
	case core.CorrectionLow:
		return qrcode.Low, nil
	case core.CorrectionMedium:
		return qrcode.Medium, nil
	case core.CorrectionQuartile:
		return qrcode.High, nil
	case core.CorrectionHigh:
		return qrcode.Highest, nil
	}
	return 0, core.Validation("errorCorrectionLevel", "must be one of L, M, Q, H")
}

func isTooLong(err error) bool {
	return strings.Contains(err.Error(), "too long")
}

// ParseHexColor parses #rgb or #rrggbb.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("color %q is not #rgb or #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q is not hexadecimal", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
