package kv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

type storeFactory func(t *testing.T, quota int64) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, quota int64) Store {
			return NewMemory(quota)
		},
		"gorm": func(t *testing.T, quota int64) Store {
			s := NewGormStore(openTestDB(t), quota)
			require.NoError(t, s.Migrate(context.Background()))
			return s
		},
		"redis": func(t *testing.T, quota int64) Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			s := NewRedisStore(rdb, WithRedisQuota(quota))
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStore_Conformance(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("set and get", func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t, 0)

				require.NoError(t, s.Set(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}))

				got, err := s.Get(ctx, "a", "missing")
				require.NoError(t, err)
				assert.Equal(t, map[string][]byte{"a": []byte("1")}, got)

				all, err := s.Get(ctx)
				require.NoError(t, err)
				assert.Len(t, all, 2)
			})

			t.Run("overwrite", func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t, 0)

				require.NoError(t, s.Set(ctx, map[string][]byte{"a": []byte("1")}))
				require.NoError(t, s.Set(ctx, map[string][]byte{"a": []byte("22")}))

				got, err := s.Get(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, []byte("22"), got["a"])
			})

			t.Run("remove and clear", func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t, 0)

				require.NoError(t, s.Set(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}))
				require.NoError(t, s.Remove(ctx, "a", "nope"))

				all, err := s.Get(ctx)
				require.NoError(t, err)
				assert.Len(t, all, 2)

				require.NoError(t, s.Clear(ctx))
				all, err = s.Get(ctx)
				require.NoError(t, err)
				assert.Empty(t, all)
			})

			t.Run("quota", func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t, 10)

				require.NoError(t, s.Set(ctx, map[string][]byte{"k": []byte("12345")}))

				err := s.Set(ctx, map[string][]byte{"other": []byte("123456")})
				require.Error(t, err)
				assert.True(t, errors.Is(err, core.ErrQuotaExceeded))
				assert.True(t, core.IsStorage(err))

				// Replacing an entry only counts the new size.
				require.NoError(t, s.Set(ctx, map[string][]byte{"k": []byte("123456789")}))

				u, err := s.Usage(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(10), u.BytesUsed)
				assert.Equal(t, int64(0), u.Available())
			})

			t.Run("notifications", func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t, 0)

				var mu sync.Mutex
				var changes []Change
				unsubscribe := s.Subscribe(func(c Change) {
					mu.Lock()
					changes = append(changes, c)
					mu.Unlock()
				})

				require.NoError(t, s.Set(ctx, map[string][]byte{"x": []byte("1")}))
				require.NoError(t, s.Clear(ctx))
				unsubscribe()
				require.NoError(t, s.Set(ctx, map[string][]byte{"y": []byte("1")}))

				mu.Lock()
				defer mu.Unlock()
				require.Len(t, changes, 2)
				assert.True(t, changes[0].Has("x"))
				assert.False(t, changes[0].Has("y"))
				assert.True(t, changes[1].Cleared)
				assert.True(t, changes[1].Has("anything"))
			})
		})
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	v := []byte("abc")
	require.NoError(t, m.Set(ctx, map[string][]byte{"k": v}))
	v[0] = 'z'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got["k"]))

	got["k"][0] = 'q'
	again, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(again["k"]))
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMemory(0).Set(ctx, map[string][]byte{"k": nil})
	assert.True(t, core.IsStorage(err))
}

func TestUsage_Unbounded(t *testing.T) {
	u := Usage{BytesUsed: 100}
	assert.Equal(t, int64(-1), u.Available())
}

func TestRedisStore_CrossProcessChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}
	a := NewRedisStore(newClient(), WithRedisKey("test:kv"))
	b := NewRedisStore(newClient(), WithRedisKey("test:kv"))
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	var mu sync.Mutex
	var seen []Change
	b.Subscribe(func(c Change) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
	})

	require.NoError(t, a.Set(ctx, map[string][]byte{"qrSettings": []byte("{}")}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0].Has("qrSettings")
	}, 2*time.Second, 10*time.Millisecond)

	got, err := b.Get(ctx, "qrSettings")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got["qrSettings"]))
}

func TestRedisStore_IgnoresOwnBroadcast(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedisStore(rdb)
	t.Cleanup(func() { _ = s.Close() })

	var mu sync.Mutex
	count := 0
	s.Subscribe(func(Change) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, s.Set(context.Background(), map[string][]byte{"k": []byte("v")}))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}
