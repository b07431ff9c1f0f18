package health

import (
	"context"
	"sync"
	"time"
)

// Store はTTL付きのキーバリューストア。
// 期限切れのエントリはストア側で受動的に失効する。
type Store interface {
	// Get はサービスの健全性を返す。エントリがない場合はfoundがfalseになる。
	Get(ctx context.Context, service string) (healthy bool, found bool, err error)
	// Set はサービスの健全性をTTL付きで保存する。
	Set(ctx context.Context, service string, healthy bool, ttl time.Duration) error
}

// memoryEntry はMemoryStoreのエントリ。
type memoryEntry struct {
	healthy   bool
	expiresAt time.Time
}

// MemoryStore は単一プロセス用のStore。
// Redisが設定されていない場合の代替として使用する。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore は新しいMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock は時刻取得関数を指定してMemoryStoreを生成する。
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// Get はサービスの健全性を返す。期限切れのエントリは存在しないものとして扱う。
func (s *MemoryStore) Get(_ context.Context, service string) (bool, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[service]
	s.mu.RUnlock()

	if !ok || !s.now().Before(e.expiresAt) {
		return false, false, nil
	}
	return e.healthy, true, nil
}

// Set はサービスの健全性をTTL付きで保存する。
func (s *MemoryStore) Set(_ context.Context, service string, healthy bool, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[service] = memoryEntry{healthy: healthy, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}
