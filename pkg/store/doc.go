// Package store provides typed, cached access to history and settings on
// top of a kv.Store.
//
// Reads are cached per key for a short TTL. The store subscribes to the
// backend's change notifications and drops affected cache entries at once,
// so a reader never sees data older than the last change it was told about.
// Storage failures are returned as *core.StorageError and never swallowed.
package store
