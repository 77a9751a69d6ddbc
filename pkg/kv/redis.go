package kv

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

const (
	defaultRedisKey = "qrjobs:kv"
	// maxWatchRetries bounds optimistic-lock retries on concurrent writers.
	maxWatchRetries = 5
)

// RedisStore implements Store on a single Redis hash. Changes are published
// on a channel so every process sharing the hash sees them.
type RedisStore struct {
	rdb     *redis.Client
	key     string
	channel string
	origin  string
	quota   int64
	logger  *slog.Logger
	notifier

	subMu  sync.Mutex
	pubsub *redis.PubSub
}

// RedisOption configures a RedisStore.
type RedisOption interface {
	applyRedis(*RedisStore)
}

type redisOptionFunc func(*RedisStore)

func (f redisOptionFunc) applyRedis(s *RedisStore) { f(s) }

// WithRedisKey sets the hash key; the change channel is derived from it.
func WithRedisKey(key string) RedisOption {
	return redisOptionFunc(func(s *RedisStore) {
		s.key = key
		s.channel = key + ":changes"
	})
}

// WithRedisQuota sets the byte quota. Zero disables the limit.
func WithRedisQuota(quota int64) RedisOption {
	return redisOptionFunc(func(s *RedisStore) {
		s.quota = quota
	})
}

// WithRedisLogger sets the logger used by the change listener.
func WithRedisLogger(l *slog.Logger) RedisOption {
	return redisOptionFunc(func(s *RedisStore) {
		if l != nil {
			s.logger = l
		}
	})
}

// NewRedisStore creates a store on rdb.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:     rdb,
		key:     defaultRedisKey,
		channel: defaultRedisKey + ":changes",
		origin:  uuid.New().String(),
		quota:   DefaultQuota,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt.applyRedis(s)
	}
	return s
}

type changeMessage struct {
	Origin  string   `json:"origin"`
	Keys    []string `json:"keys,omitempty"`
	Cleared bool     `json:"cleared,omitempty"`
}

// Get returns the values for keys, or every field of the hash.
func (s *RedisStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if len(keys) == 0 {
		all, err := s.rdb.HGetAll(ctx, s.key).Result()
		if err != nil {
			return nil, core.Storage("get", err)
		}
		for k, v := range all {
			out[k] = []byte(v)
		}
		return out, nil
	}

	vals, err := s.rdb.HMGet(ctx, s.key, keys...).Result()
	if err != nil {
		return nil, core.Storage("get", err)
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = []byte(str)
		}
	}
	return out, nil
}

// Set writes entries under an optimistic lock on the hash.
func (s *RedisStore) Set(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	keys := sortedKeys(entries)

	txf := func(tx *redis.Tx) error {
		if s.quota > 0 {
			all, err := tx.HGetAll(ctx, s.key).Result()
			if err != nil {
				return err
			}
			var used int64
			for k, v := range all {
				if _, replaced := entries[k]; !replaced {
					used += entrySize(k, []byte(v))
				}
			}
			for k, v := range entries {
				used += entrySize(k, v)
			}
			if used > s.quota {
				return core.ErrQuotaExceeded
			}
		}

		fields := make([]any, 0, len(entries)*2)
		for _, k := range keys {
			fields = append(fields, k, entries[k])
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, s.key, fields...)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf); err != nil {
		return core.Storage("set", err)
	}
	s.announce(ctx, changeMessage{Keys: keys})
	return nil
}

// Remove deletes fields from the hash.
func (s *RedisStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.HDel(ctx, s.key, keys...).Err(); err != nil {
		return core.Storage("remove", err)
	}
	s.announce(ctx, changeMessage{Keys: keys})
	return nil
}

// Clear deletes the whole hash.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return core.Storage("clear", err)
	}
	s.announce(ctx, changeMessage{Cleared: true})
	return nil
}

// Subscribe registers fn and, on first use, starts listening for changes
// published by other processes.
func (s *RedisStore) Subscribe(fn func(Change)) func() {
	s.startListener()
	return s.subscribe(fn)
}

// Usage sums the accounted size of every field.
func (s *RedisStore) Usage(ctx context.Context) (Usage, error) {
	all, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Usage{}, core.Storage("usage", err)
	}
	var used int64
	for k, v := range all {
		used += entrySize(k, []byte(v))
	}
	return Usage{BytesUsed: used, Quota: s.quota}, nil
}

// Close stops the change listener. The Redis client is left open.
func (s *RedisStore) Close() error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.pubsub == nil {
		return nil
	}
	err := s.pubsub.Close()
	s.pubsub = nil
	return err
}

func (s *RedisStore) watch(ctx context.Context, txf func(*redis.Tx) error) error {
	var err error
	for range maxWatchRetries {
		err = s.rdb.Watch(ctx, txf, s.key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// announce notifies local subscribers and publishes the change. Publish
// failures are logged; the write itself already succeeded.
func (s *RedisStore) announce(ctx context.Context, msg changeMessage) {
	s.notify(Change{Keys: msg.Keys, Cleared: msg.Cleared})

	msg.Origin = s.origin
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, s.channel, data).Err(); err != nil {
		s.logger.Warn("failed to publish kv change", "channel", s.channel, "error", err)
	}
}

func (s *RedisStore) startListener() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.pubsub != nil {
		return
	}

	ctx := context.Background()
	ps := s.rdb.Subscribe(ctx, s.channel)
	// Wait for the subscription to be confirmed so no change is missed.
	if _, err := ps.Receive(ctx); err != nil {
		s.logger.Warn("failed to subscribe to kv changes", "channel", s.channel, "error", err)
		_ = ps.Close()
		return
	}
	s.pubsub = ps

	go func() {
		for m := range ps.Channel() {
			var msg changeMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				s.logger.Warn("dropping malformed kv change", "error", err)
				continue
			}
			if msg.Origin == s.origin {
				continue
			}
			s.notify(Change{Keys: msg.Keys, Cleared: msg.Cleared})
		}
	}()
}
