// Package security provides validation, sanitization, and limits for the qrjobs package.
//
// This package includes:
//   - Input validation for QR text and batch job names
//   - Filename sanitization for export bundles
//   - Error message sanitization to prevent sensitive data leakage
//   - Privacy filtering of analytics properties
//   - Clamping functions to enforce safe limits on retries and concurrency
//
// Most users should import the root package github.com/jdziat/simple-qr-jobs
// which re-exports these functions.
package security
