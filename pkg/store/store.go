package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/kv"
)

// Storage keys.
const (
	HistoryKey  = "qrHistory"
	SettingsKey = "qrSettings"
)

// Defaults.
const (
	DefaultCacheTTL        = 5 * time.Second
	DefaultDuplicateWindow = 60 * time.Second
)

type cacheEntry struct {
	raw     []byte
	present bool
	expires time.Time
}

// Store is a cached accessor over a kv.Store.
type Store struct {
	kv        kv.Store
	ttl       time.Duration
	dupWindow time.Duration
	now       func() time.Time
	logger    *slog.Logger
	defaults  Settings

	mu    sync.Mutex
	cache map[string]cacheEntry
	// gens and epoch guard against re-caching a value fetched before an
	// invalidation landed.
	gens  map[string]uint64
	epoch uint64

	// histMu serializes read-modify-write cycles on the history list.
	histMu sync.Mutex

	unsubscribe func()
}

// Option configures a Store.
type Option interface {
	apply(*Store)
}

type optionFunc func(*Store)

func (f optionFunc) apply(s *Store) { f(s) }

// WithCacheTTL sets how long reads are cached. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return optionFunc(func(s *Store) {
		if d >= 0 {
			s.ttl = d
		}
	})
}

// WithDuplicateWindow sets the window in which identical history entries
// are coalesced.
func WithDuplicateWindow(d time.Duration) Option {
	return optionFunc(func(s *Store) {
		if d >= 0 {
			s.dupWindow = d
		}
	})
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(s *Store) {
		if now != nil {
			s.now = now
		}
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Store) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithDefaultSettings replaces the settings returned before the user saves
// any. Invalid defaults are ignored.
func WithDefaultSettings(d Settings) Option {
	return optionFunc(func(s *Store) {
		if d.validate() == nil {
			s.defaults = d
		}
	})
}

// New creates a Store and subscribes to backend changes.
func New(backend kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:        backend,
		ttl:       DefaultCacheTTL,
		dupWindow: DefaultDuplicateWindow,
		now:       time.Now,
		logger:    slog.Default(),
		defaults:  DefaultSettings(),
		cache:     make(map[string]cacheEntry),
		gens:      make(map[string]uint64),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	s.unsubscribe = backend.Subscribe(s.invalidate)
	return s
}

// Close stops listening for backend changes.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Store) invalidate(c kv.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Cleared {
		s.cache = make(map[string]cacheEntry)
		s.epoch++
		return
	}
	for _, k := range c.Keys {
		delete(s.cache, k)
		s.gens[k]++
	}
}

// getRaw returns the stored bytes for key, consulting the cache first.
func (s *Store) getRaw(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	if e, ok := s.cache[key]; ok && s.now().Before(e.expires) {
		s.mu.Unlock()
		return e.raw, e.present, nil
	}
	gen, epoch := s.gens[key], s.epoch
	s.mu.Unlock()

	vals, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, false, core.Storage("get", err)
	}
	raw, present := vals[key]

	if s.ttl > 0 {
		s.mu.Lock()
		if s.gens[key] == gen && s.epoch == epoch {
			s.cache[key] = cacheEntry{raw: raw, present: present, expires: s.now().Add(s.ttl)}
		}
		s.mu.Unlock()
	}
	return raw, present, nil
}

// Get decodes the JSON value stored under key. The boolean reports whether
// the key was present.
func Get[T any](ctx context.Context, s *Store, key string) (T, bool, error) {
	var v T
	raw, ok, err := s.getRaw(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, core.Storage("decode "+key, err)
	}
	return v, true, nil
}

// Set JSON-encodes and writes every entry in one call.
func (s *Store) Set(ctx context.Context, entries map[string]any) error {
	raw := make(map[string][]byte, len(entries))
	for k, v := range entries {
		b, err := json.Marshal(v)
		if err != nil {
			return core.Storage("encode "+k, err)
		}
		raw[k] = b
	}
	if err := s.kv.Set(ctx, raw); err != nil {
		return core.Storage("set", err)
	}
	s.invalidate(kv.Change{Keys: keysOf(raw)})
	return nil
}

// Remove deletes keys.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if err := s.kv.Remove(ctx, keys...); err != nil {
		return core.Storage("remove", err)
	}
	s.invalidate(kv.Change{Keys: keys})
	return nil
}

// Clear deletes everything in the backend.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Clear(ctx); err != nil {
		return core.Storage("clear", err)
	}
	s.invalidate(kv.Change{Cleared: true})
	return nil
}

// Usage reports backend quota usage.
func (s *Store) Usage(ctx context.Context) (kv.Usage, error) {
	u, err := s.kv.Usage(ctx)
	if err != nil {
		return kv.Usage{}, core.Storage("usage", err)
	}
	return u, nil
}

func keysOf(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
