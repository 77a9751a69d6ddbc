package kv

import (
	"context"
	"sync"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	data  map[string][]byte
	quota int64
	notifier
}

// NewMemory creates an empty in-memory store with the given quota.
// A quota of zero or less disables the limit.
func NewMemory(quota int64) *Memory {
	return &Memory{data: make(map[string][]byte), quota: quota}
}

// Get returns copies of the stored values.
func (m *Memory) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.Storage("get", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte)
	if len(keys) == 0 {
		for k, v := range m.data {
			out[k] = append([]byte(nil), v...)
		}
		return out, nil
	}
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

// Set writes entries atomically, rejecting writes that exceed the quota.
func (m *Memory) Set(ctx context.Context, entries map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return core.Storage("set", err)
	}
	if len(entries) == 0 {
		return nil
	}

	m.mu.Lock()
	if m.quota > 0 {
		used := m.usedLocked()
		for k, v := range entries {
			if old, ok := m.data[k]; ok {
				used -= entrySize(k, old)
			}
			used += entrySize(k, v)
		}
		if used > m.quota {
			m.mu.Unlock()
			return core.Storage("set", core.ErrQuotaExceeded)
		}
	}
	for k, v := range entries {
		m.data[k] = append([]byte(nil), v...)
	}
	m.mu.Unlock()

	m.notify(Change{Keys: sortedKeys(entries)})
	return nil
}

// Remove deletes keys; missing keys are ignored.
func (m *Memory) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return core.Storage("remove", err)
	}
	if len(keys) == 0 {
		return nil
	}
	m.mu.Lock()
	for _, k := range keys {
		delete(m.data, k)
	}
	m.mu.Unlock()

	m.notify(Change{Keys: keys})
	return nil
}

// Clear deletes every entry.
func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return core.Storage("clear", err)
	}
	m.mu.Lock()
	m.data = make(map[string][]byte)
	m.mu.Unlock()

	m.notify(Change{Cleared: true})
	return nil
}

// Subscribe registers a change listener.
func (m *Memory) Subscribe(fn func(Change)) func() {
	return m.subscribe(fn)
}

// Usage reports the accounted size of all entries.
func (m *Memory) Usage(ctx context.Context) (Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Usage{BytesUsed: m.usedLocked(), Quota: m.quota}, nil
}

func (m *Memory) usedLocked() int64 {
	var used int64
	for k, v := range m.data {
		used += entrySize(k, v)
	}
	return used
}
