// Package kv provides the key-value persistence layer behind history,
// settings, batch jobs and export templates.
//
// This package includes:
//   - Store: the capability interface (get/set/remove/clear, change
//     notifications, usage query) every backend implements
//   - Memory: an in-process map, used by tests and the "memory" backend
//   - GormStore: a GORM-backed table, usable with SQLite or PostgreSQL
//   - RedisStore: a Redis hash with pub/sub change notifications across processes
//
// Every backend enforces a byte quota and wraps failures in *core.StorageError.
package kv
