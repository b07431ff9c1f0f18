package health

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
)

// fakeClock はテスト用の進められる時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now は現在時刻を返す。
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance は時計を進める。
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// setupMiniRedis はテスト用のminiredisサーバーとRedisStoreを生成する。
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client, "test:")
}

// TestCache_MemoryTTL は結果ごとに異なるTTLを検証する。
func TestCache_MemoryTTL(t *testing.T) {
	t.Parallel()

	t.Run("健全な結果は不健全TTL経過後も健全TTL内なら有効であること", func(t *testing.T) {
		t.Parallel()

		clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		cache := NewCache(NewMemoryStoreWithClock(clock.Now), 30*time.Second, 5*time.Second, nil)

		cache.Set(context.Background(), "order", true)
		clock.Advance(10 * time.Second)

		healthy, found := cache.Get(context.Background(), "order")
		assert.True(t, found)
		assert.True(t, healthy)

		clock.Advance(25 * time.Second)
		_, found = cache.Get(context.Background(), "order")
		assert.False(t, found)
	})

	t.Run("不健全な結果は不健全TTL経過後に失効すること", func(t *testing.T) {
		t.Parallel()

		clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		cache := NewCache(NewMemoryStoreWithClock(clock.Now), 30*time.Second, 5*time.Second, nil)

		cache.Set(context.Background(), "order", false)
		clock.Advance(4 * time.Second)

		healthy, found := cache.Get(context.Background(), "order")
		assert.True(t, found)
		assert.False(t, healthy)

		clock.Advance(2 * time.Second)
		_, found = cache.Get(context.Background(), "order")
		assert.False(t, found)
	})

	t.Run("TTL未指定の場合デフォルト値が使われること", func(t *testing.T) {
		t.Parallel()

		cache := NewCache(NewMemoryStore(), 0, 0, nil)
		assert.Equal(t, DefaultHealthyTTL, cache.TTL(true))
		assert.Equal(t, DefaultUnhealthyTTL, cache.TTL(false))
	})
}

// TestCache_RedisTTL はRedisStoreでのTTLの往復を検証する。
func TestCache_RedisTTL(t *testing.T) {
	t.Parallel()

	t.Run("健全な結果は不健全TTL経過後も健全TTL内なら有効であること", func(t *testing.T) {
		t.Parallel()

		mr, store := setupMiniRedis(t)
		cache := NewCache(store, 30*time.Second, 5*time.Second, nil)

		cache.Set(context.Background(), "order", true)
		mr.FastForward(10 * time.Second)

		healthy, found := cache.Get(context.Background(), "order")
		assert.True(t, found)
		assert.True(t, healthy)

		mr.FastForward(25 * time.Second)
		_, found = cache.Get(context.Background(), "order")
		assert.False(t, found)
	})

	t.Run("不健全な結果は短いTTLで保存されること", func(t *testing.T) {
		t.Parallel()

		mr, store := setupMiniRedis(t)
		cache := NewCache(store, 30*time.Second, 5*time.Second, nil)

		cache.Set(context.Background(), "payment", false)
		assert.Equal(t, 5*time.Second, mr.TTL("test:health:payment"))

		got, err := mr.Get("test:health:payment")
		require.NoError(t, err)
		assert.Equal(t, "0", got)

		healthy, found := cache.Get(context.Background(), "payment")
		assert.True(t, found)
		assert.False(t, healthy)

		mr.FastForward(6 * time.Second)
		_, found = cache.Get(context.Background(), "payment")
		assert.False(t, found)
	})

	t.Run("Redis障害時はキャッシュミスとして扱われること", func(t *testing.T) {
		t.Parallel()

		mr, store := setupMiniRedis(t)
		cache := NewCache(store, 30*time.Second, 5*time.Second, nil)
		mr.SetError("READONLY simulated failure")

		assert.NotPanics(t, func() { cache.Set(context.Background(), "order", true) })
		_, found := cache.Get(context.Background(), "order")
		assert.False(t, found)
	})
}

// TestRedisStore はRedisStoreの基本動作を検証する。
func TestRedisStore(t *testing.T) {
	t.Parallel()

	t.Run("存在しないキーはfoundがfalseになること", func(t *testing.T) {
		t.Parallel()

		_, store := setupMiniRedis(t)
		healthy, found, err := store.Get(context.Background(), "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.False(t, healthy)
	})

	t.Run("プレフィックス未指定の場合デフォルトが使われること", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		store := NewRedisStore(client, "")
		require.NoError(t, store.Set(context.Background(), "order", true, time.Minute))
		assert.True(t, mr.Exists(DefaultKeyPrefix+"health:order"))
	})

	t.Run("DialRedisで接続できること", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		client, err := DialRedis(context.Background(), "redis://"+mr.Addr())
		require.NoError(t, err)
		_ = client.Close()
	})

	t.Run("DialRedisは不正なURLでエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := DialRedis(context.Background(), "://invalid")
		assert.Error(t, err)
	})

	t.Run("接続エラーはラップされて返ること", func(t *testing.T) {
		t.Parallel()

		mr, store := setupMiniRedis(t)
		mr.Close()

		_, _, err := store.Get(context.Background(), "order")
		require.Error(t, err)
		assert.False(t, errors.Is(err, redis.Nil))
	})
}
