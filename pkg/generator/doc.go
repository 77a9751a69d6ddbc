// Package generator is the single entry point for producing QR codes.
//
// A Generator validates input, delegates rendering to a core.Encoder, and
// assembles an immutable core.GenerationResult with a kind-specific title.
// Typed payloads (WiFi, contact, calendar, email, phone, SMS) are validated
// structurally and encoded into their standard string formats before
// generation.
//
// Basic usage:
//
//	gen := generator.New(encoder.New())
//	res, err := gen.GenerateWiFi(ctx, generator.WiFiPayload{
//	    SSID:     "office",
//	    Password: "hunter22",
//	    Security: generator.SecurityWPA,
//	}, core.RenderOptions{})
package generator
