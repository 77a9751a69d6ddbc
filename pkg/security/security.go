// Package security provides validation, sanitization, and limits for the qrjobs package.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// Security limits and configuration
const (
	// MaxTextLength is the practical ceiling for QR content, in characters
	MaxTextLength = 4296

	// MaxJobNameLength is the maximum length for batch job names
	MaxJobNameLength = 255

	// MaxTasksPerJob is the hard limit for tasks in one batch job
	MaxTasksPerJob = 1000

	// MaxRetries is the hard limit for retry attempts
	MaxRetries = 10

	// MaxConcurrency is the hard limit for batch concurrency
	MaxConcurrency = 10

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 1024

	// MaxFilenameLength is the maximum length of a sanitized name component
	MaxFilenameLength = 100
)

// unsafeFilenameChars matches everything outside [A-Za-z0-9_-]
var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// ValidateText validates QR content before it reaches the encoder
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return core.Validation("text", "empty")
	}
	if n := utf8.RuneCountInString(text); n > MaxTextLength {
		return core.Validation("text", "exceeds maximum length")
	}
	if strings.ContainsRune(text, 0) {
		return core.Validation("text", "contains null bytes")
	}
	return nil
}

// ValidateJobName validates a batch job display name
func ValidateJobName(name string) error {
	if strings.TrimSpace(name) == "" {
		return core.Validation("name", "empty")
	}
	if utf8.RuneCountInString(name) > MaxJobNameLength {
		return core.Validation("name", "too long")
	}
	if strings.ContainsRune(name, 0) {
		return core.Validation("name", "contains null bytes")
	}
	return nil
}

// SanitizeFilename strips every character outside [A-Za-z0-9_-] and truncates
// the result to MaxFilenameLength
func SanitizeFilename(name string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(name, "")
	if len(cleaned) > MaxFilenameLength {
		cleaned = cleaned[:MaxFilenameLength]
	}
	return cleaned
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampRetries ensures retry count is within limits
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetries {
		return MaxRetries
	}
	return n
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
