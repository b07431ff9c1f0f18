package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix はRedisキーのデフォルトプレフィックス。
const DefaultKeyPrefix = "shopgate:"

// RedisStore はRedisをバックエンドとするStore。
// 水平スケールした複数のGatewayプロセスで健全性を共有する。
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore は既存のRedisクライアントからRedisStoreを生成する。
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// DialRedis はURLからRedisクライアントを生成し、疎通を確認する。
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("RedisのURLが不正です: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return client, nil
}

// key はサービスのヘルスキーを返す。
func (s *RedisStore) key(service string) string {
	return s.keyPrefix + "health:" + service
}

// Get はサービスの健全性を返す。
func (s *RedisStore) Get(ctx context.Context, service string) (bool, bool, error) {
	val, err := s.client.Get(ctx, s.key(service)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("Redisからの取得に失敗: %w", err)
	}
	return val == "1", true, nil
}

// Set はサービスの健全性をTTL付きで保存する。
func (s *RedisStore) Set(ctx context.Context, service string, healthy bool, ttl time.Duration) error {
	val := "0"
	if healthy {
		val = "1"
	}
	if err := s.client.Set(ctx, s.key(service), val, ttl).Err(); err != nil {
		return fmt.Errorf("Redisへの保存に失敗: %w", err)
	}
	return nil
}
