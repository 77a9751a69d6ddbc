package core

import "context"

// Image is a rendered QR symbol.
type Image struct {
	Data     []byte
	MIMEType string
}

// Encoder renders text into a QR image.
// Implementations must return an *EncodingError with TooLong set when the text
// exceeds the capacity of the requested error-correction level.
type Encoder interface {
	Encode(ctx context.Context, text string, opts RenderOptions) (*Image, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(ctx context.Context, text string, opts RenderOptions) (*Image, error)

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, text string, opts RenderOptions) (*Image, error) {
	return f(ctx, text, opts)
}
