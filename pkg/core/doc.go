// Package core provides the fundamental types and interfaces for the qrjobs package.
//
// This package contains:
//   - GenerationTask, GenerationResult and BatchJob data models with JSON tags
//     matching the persisted job record
//   - The Encoder capability interface wrapping an external QR encoder
//   - Event types for scheduler and generator monitoring
//   - The error taxonomy shared by every service
//
// Most users should import the root package github.com/jdziat/simple-qr-jobs
// instead of this package directly.
package core
