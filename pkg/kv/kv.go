package kv

import (
	"context"
	"sort"
	"sync"
)

// DefaultQuota mirrors the ~5MB budget of browser extension storage.
const DefaultQuota int64 = 5 << 20

// Change describes the keys touched by a successful mutation.
type Change struct {
	Keys []string
	// Cleared is set when the whole store was wiped.
	Cleared bool
}

// Has reports whether key was affected by the change.
func (c Change) Has(key string) bool {
	if c.Cleared {
		return true
	}
	for _, k := range c.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Usage reports how much of the quota is in use.
type Usage struct {
	BytesUsed int64
	Quota     int64
}

// Available returns the remaining bytes, or -1 when the store is unbounded.
func (u Usage) Available() int64 {
	if u.Quota <= 0 {
		return -1
	}
	if u.BytesUsed >= u.Quota {
		return 0
	}
	return u.Quota - u.BytesUsed
}

// Store is an async-style key-value store with change notifications.
type Store interface {
	// Get returns the values for keys; missing keys are absent from the map.
	// With no keys, every entry is returned.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, entries map[string][]byte) error
	Remove(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error

	// Subscribe registers fn for change notifications and returns a function
	// that removes the subscription.
	Subscribe(fn func(Change)) (unsubscribe func())

	Usage(ctx context.Context) (Usage, error)
}

// entrySize is the accounted size of one entry.
func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}

// sortedKeys returns the keys of entries in sorted order.
func sortedKeys(entries map[string][]byte) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// notifier fans change notifications out to subscribers.
type notifier struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Change)
}

func (n *notifier) subscribe(fn func(Change)) func() {
	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[int]func(Change))
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) notify(c Change) {
	n.mu.RLock()
	fns := make([]func(Change), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
