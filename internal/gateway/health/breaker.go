package health

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/shopgate/pkg/metrics"
)

// DefaultCooldown はブレーカーが開いてから再プローブを許可するまでの期間。
const DefaultCooldown = 60 * time.Second

// CircuitBreaker はライブプローブをクールダウン付きで抑制し、サービスの健全性を判定する。
//
// Closed: キャッシュにあればその値を返し、なければプローブする。失敗でOpenへ遷移する。
// 同じサービスへの同時のキャッシュミスは1回のプローブにまとめる。
// Open: クールダウン中はプローブせずに即座にfalseを返す。
// HalfOpen: クールダウン経過後、1回だけ試行プローブを許可する。
type CircuitBreaker struct {
	// breakers はサービス名ごとのブレーカー。構築後は読み取り専用。
	breakers map[string]*gobreaker.CircuitBreaker
	cache    *Cache
	prober   Prober
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	// misses はClosed状態のキャッシュミスをサービスごとに1回のプローブへまとめる。
	misses singleflight.Group
}

// BreakerOptions はCircuitBreakerの設定。
type BreakerOptions struct {
	// Cooldown はOpen状態を維持する期間。
	Cooldown time.Duration
	// ProbeTimeout はプローブ1回あたりのタイムアウト。
	ProbeTimeout time.Duration
	// Logger はロガー。nilの場合は何も出力しない。
	Logger *zap.Logger
	// Metrics はメトリクス。nilの場合は記録しない。
	Metrics *metrics.Metrics
}

// NewCircuitBreaker はサービスごとのブレーカーを生成する。
func NewCircuitBreaker(services []string, cache *Cache, prober Prober, opts BreakerOptions) *CircuitBreaker {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	b := &CircuitBreaker{
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(services)),
		cache:    cache,
		prober:   prober,
		timeout:  opts.ProbeTimeout,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}

	for _, name := range services {
		b.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     opts.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 1
			},
			IsSuccessful: func(err error) bool {
				// 呼び出し元の切断によるキャンセルはサービスの失敗として数えない
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: b.onStateChange,
		})
		b.metrics.SetBreakerState(name, int(gobreaker.StateClosed))
	}
	return b
}

// onStateChange は状態遷移をログとメトリクスに記録する。
func (b *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	fields := []zap.Field{
		zap.String("service", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	}
	if to == gobreaker.StateOpen {
		b.logger.Warn("サーキットブレーカーが開きました", fields...)
	} else {
		b.logger.Info("サーキットブレーカーの状態が変化しました", fields...)
	}
	b.metrics.SetBreakerState(name, int(to))
}

// IsHealthy はサービスが転送可能かを返す。
// 呼び出し元をブロックする時間はプローブのタイムアウトで上限が決まる。
func (b *CircuitBreaker) IsHealthy(ctx context.Context, service string) bool {
	cb, ok := b.breakers[service]
	if !ok {
		b.logger.Error("未定義のサービスの健全性が問い合わせられました", zap.String("service", service))
		return false
	}

	if ctx.Err() != nil {
		return false
	}

	switch cb.State() {
	case gobreaker.StateOpen:
		return false
	case gobreaker.StateHalfOpen:
		// 試行プローブはキャッシュを参照せずに行い、同時の呼び出しはgobreakerが拒否する
		return b.execute(ctx, cb, service)
	case gobreaker.StateClosed:
	}

	if healthy, found := b.cache.Get(ctx, service); found {
		return healthy
	}

	// プローブは呼び出し元から切り離し、待っている全員で結果を共有する。
	// 呼び出し元がキャンセルされた場合は結果を待たずにfalseを返す。
	ch := b.misses.DoChan(service, func() (any, error) {
		return b.execute(context.WithoutCancel(ctx), cb, service), nil
	})
	select {
	case res := <-ch:
		healthy, _ := res.Val.(bool)
		return healthy
	case <-ctx.Done():
		return false
	}
}

// execute はブレーカーを通してプローブし、結果をキャッシュとメトリクスに記録する。
func (b *CircuitBreaker) execute(ctx context.Context, cb *gobreaker.CircuitBreaker, service string) bool {
	_, err := cb.Execute(func() (any, error) {
		return nil, b.probe(ctx, service)
	})

	switch {
	case err == nil:
		b.cache.Set(context.WithoutCancel(ctx), service, true)
		b.metrics.IncProbe(service, true)
		return true
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		// 他の呼び出しが試行プローブ中、または直前に開いた
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		b.logger.Warn("ヘルスプローブに失敗", zap.String("service", service), zap.Error(err))
		b.cache.Set(context.WithoutCancel(ctx), service, false)
		b.metrics.IncProbe(service, false)
		return false
	}
}

// probe はタイムアウト付きでプローブを実行する。
func (b *CircuitBreaker) probe(ctx context.Context, service string) error {
	probeCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err := b.prober.Probe(probeCtx, service)
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// State はサービスのブレーカー状態を返す。
func (b *CircuitBreaker) State(service string) (string, bool) {
	cb, ok := b.breakers[service]
	if !ok {
		return "", false
	}
	return cb.State().String(), true
}
