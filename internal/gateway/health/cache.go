package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultHealthyTTL は健全な結果のデフォルトキャッシュ期間。
	DefaultHealthyTTL = 30 * time.Second
	// DefaultUnhealthyTTL は不健全な結果のデフォルトキャッシュ期間。
	DefaultUnhealthyTTL = 5 * time.Second
)

// Cache はサービスごとの健全性を期限付きでキャッシュする。
// 健全な結果は長く、不健全な結果は短くキャッシュする。
// ストアの障害はキャッシュミスとして扱い、リクエストを失敗させない。
type Cache struct {
	store        Store
	healthyTTL   time.Duration
	unhealthyTTL time.Duration
	logger       *zap.Logger
}

// NewCache は新しいCacheを生成する。TTLが0以下の場合はデフォルト値を使う。
func NewCache(store Store, healthyTTL, unhealthyTTL time.Duration, logger *zap.Logger) *Cache {
	if healthyTTL <= 0 {
		healthyTTL = DefaultHealthyTTL
	}
	if unhealthyTTL <= 0 {
		unhealthyTTL = DefaultUnhealthyTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:        store,
		healthyTTL:   healthyTTL,
		unhealthyTTL: unhealthyTTL,
		logger:       logger,
	}
}

// Get はキャッシュされた健全性を返す。エントリがない場合はfoundがfalseになる。
func (c *Cache) Get(ctx context.Context, service string) (healthy bool, found bool) {
	healthy, found, err := c.store.Get(ctx, service)
	if err != nil {
		c.logger.Warn("ヘルスキャッシュの取得に失敗",
			zap.String("service", service), zap.Error(err))
		return false, false
	}
	return healthy, found
}

// Set は健全性を結果に応じたTTLでキャッシュする。
func (c *Cache) Set(ctx context.Context, service string, healthy bool) {
	if err := c.store.Set(ctx, service, healthy, c.TTL(healthy)); err != nil {
		c.logger.Warn("ヘルスキャッシュの保存に失敗",
			zap.String("service", service), zap.Bool("healthy", healthy), zap.Error(err))
	}
}

// TTL は結果に応じたキャッシュ期間を返す。
func (c *Cache) TTL(healthy bool) time.Duration {
	if healthy {
		return c.healthyTTL
	}
	return c.unhealthyTTL
}
