package gateway

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nao1215/shopgate/internal/gateway/forward"
	"github.com/nao1215/shopgate/internal/gateway/gwerror"
	"github.com/nao1215/shopgate/internal/gateway/routing"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/identity"
	"github.com/nao1215/shopgate/pkg/metrics"
)

// Gate はパスの認証要否を判定し、識別情報を解決する。
type Gate interface {
	RequiresAuth(path string) bool
	Resolve(ctx context.Context, r *http.Request) *identity.Identity
}

// Resolver はパスから転送先のサービスを解決する。
type Resolver interface {
	Resolve(path string) (routing.ServiceEndpoint, bool)
}

// HealthChecker はサービスが転送可能かを判定する。
type HealthChecker interface {
	IsHealthy(ctx context.Context, service string) bool
}

// Relayer はリクエストをバックエンドサービスへ中継する。
type Relayer interface {
	Relay(ctx context.Context, fctx *forward.Context) (*forward.Response, error)
}

// Router は1件のリクエストに対して、認証、ルーティング、健全性確認、転送を順に行う。
// 安価でセキュリティ上重要な判定を先に行い、通らなかったリクエストはネットワーク呼び出しに到達しない。
type Router struct {
	gate    Gate
	routes  Resolver
	health  HealthChecker
	relayer Relayer
	logger  *zap.Logger
	metrics *metrics.Metrics
	// maxRequestBody はバッファするリクエストボディの上限バイト数。
	maxRequestBody int64
}

// RouterDeps はRouterの依存関係。
type RouterDeps struct {
	Gate    Gate
	Routes  Resolver
	Health  HealthChecker
	Relayer Relayer
	// Logger はnilの場合は何も出力しない。
	Logger *zap.Logger
	// Metrics はnilの場合は記録しない。
	Metrics *metrics.Metrics
	// MaxRequestBody はリクエストボディの上限バイト数。0以下の場合はforward.DefaultMaxRequestBody。
	MaxRequestBody int64
}

// NewRouter は新しいRouterを生成する。
func NewRouter(deps RouterDeps) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxRequestBody <= 0 {
		deps.MaxRequestBody = forward.DefaultMaxRequestBody
	}
	return &Router{
		gate:    deps.Gate,
		routes:  deps.Routes,
		health:  deps.Health,
		relayer: deps.Relayer,
		logger:  deps.Logger,
		metrics: deps.Metrics,

		maxRequestBody: deps.MaxRequestBody,
	}
}

// Route はリクエストを処理し、バックエンドのレスポンスまたはGatewayエラーを返す。
// 戻り値のどちらか一方だけが非nilになる。
func (rt *Router) Route(r *http.Request, requestID string) (*forward.Response, *gwerror.Error) {
	ctx := r.Context()
	path := r.URL.Path

	// 認証サービスへの問い合わせにもリクエストIDを伝播する
	id := rt.gate.Resolve(httpclient.WithRequestID(ctx, requestID), r)
	if id == nil && rt.gate.RequiresAuth(path) {
		return nil, rt.reject(r, requestID, gwerror.AuthRequired())
	}

	ep, ok := rt.routes.Resolve(path)
	if !ok {
		return nil, rt.reject(r, requestID, gwerror.RouteNotFound(path))
	}

	if !rt.health.IsHealthy(ctx, ep.Name) {
		return nil, rt.reject(r, requestID, gwerror.ServiceUnavailable(ep.Name))
	}

	if r.Body != nil && r.Body != http.NoBody {
		r.Body = http.MaxBytesReader(nil, r.Body, rt.maxRequestBody)
	}
	fctx, err := forward.NewContext(r, ep, requestID, id)
	if err != nil {
		var (
			bodyErr *forward.BodyReadError
			sizeErr *http.MaxBytesError
		)
		switch {
		case errors.As(err, &sizeErr):
			// 上限を超えたボディは切り詰めて転送せずに拒否する
			return nil, rt.reject(r, requestID, gwerror.PayloadTooLarge(ep.Name, sizeErr.Limit, err))
		case errors.As(err, &bodyErr):
			rt.logger.Warn("リクエストボディの読み込みに失敗したためボディなしで転送します",
				zap.String("service", ep.Name),
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		default:
			return nil, rt.reject(r, requestID, gwerror.Internal(ep.Name, err))
		}
	}

	resp, err := rt.relayer.Relay(ctx, fctx)
	if err != nil {
		gwErr := gwerror.As(err)
		rt.log(r, requestID, gwErr)
		return nil, gwErr
	}
	return resp, nil
}

// reject は転送前に発生したエラーを記録して返す。
func (rt *Router) reject(r *http.Request, requestID string, gwErr *gwerror.Error) *gwerror.Error {
	rt.metrics.IncError(gwErr.Service, gwErr.Kind.String())
	rt.log(r, requestID, gwErr)
	return gwErr
}

// log はエラーの種類に応じたレベルでログを出力する。
// クライアントエラーと、呼び出し元の切断による中断はGatewayの障害ではないためdebugに留める。
func (rt *Router) log(r *http.Request, requestID string, gwErr *gwerror.Error) {
	fields := []zap.Field{
		zap.String("code", gwErr.Kind.String()),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestID),
	}
	switch {
	case gwErr.Kind.IsClientError():
		rt.logger.Debug("リクエストを拒否しました", fields...)
	case forward.ClientCanceled(r.Context(), gwErr):
		fields = append(fields, zap.String("service", gwErr.Service))
		rt.logger.Debug("呼び出し元が転送の完了前に切断しました", fields...)
	case gwErr.Kind.IsUpstream():
		fields = append(fields, zap.String("service", gwErr.Service), zap.Error(gwErr.Cause))
		rt.logger.Warn("転送先サービスでエラーが発生しました", fields...)
	default:
		fields = append(fields, zap.String("service", gwErr.Service), zap.Error(gwErr.Cause))
		rt.logger.Error("Gateway内部エラー", fields...)
	}
}
