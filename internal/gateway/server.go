package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/shopgate/internal/gateway/authgate"
	"github.com/nao1215/shopgate/internal/gateway/forward"
	"github.com/nao1215/shopgate/internal/gateway/gwerror"
	"github.com/nao1215/shopgate/internal/gateway/health"
	"github.com/nao1215/shopgate/internal/gateway/routing"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/identity"
	"github.com/nao1215/shopgate/pkg/metrics"
	"github.com/nao1215/shopgate/pkg/middleware"
)

const (
	// shutdownTimeout はグレースフルシャットダウンで処理中のリクエストを待つ上限。
	shutdownTimeout = 15 * time.Second
	// healthCheckConcurrency は集約ヘルスチェックで同時にプローブするサービス数の上限。
	healthCheckConcurrency = 8
)

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// engine はGinのHTTPルーター。
	engine *gin.Engine
	// cfg は起動時に読み込んだ設定。
	cfg *Config
	// gateway は転送リクエストを処理するRouter。
	gateway *Router
	// table はルーティングテーブル。
	table *routing.Table
	// breaker はサービスごとのサーキットブレーカー。
	breaker *health.CircuitBreaker
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
	// redis はヘルスキャッシュの共有ストアへの接続。メモリストア使用時はnil。
	redis  *redis.Client
	logger *zap.Logger
}

// NewServer は設定から全コンポーネントを構築し、新しいGatewayサーバーを生成する。
func NewServer(ctx context.Context, cfg *Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	table, err := routing.NewTable(cfg.Routes, cfg.Services)
	if err != nil {
		return nil, fmt.Errorf("ルーティングテーブルの構築に失敗: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		table:   table,
		metrics: metrics.New(),
		logger:  logger,
	}

	store, err := s.newHealthStore(ctx)
	if err != nil {
		return nil, err
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	endpoints := table.Endpoints()
	names := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		names = append(names, ep.Name)
	}

	cache := health.NewCache(store, cfg.Health.HealthyTTL, cfg.Health.UnhealthyTTL, logger)
	prober := health.NewHTTPProber(endpoints, cfg.Upstream.ConnectTimeout, cfg.Health.ProbeTimeout)
	s.breaker = health.NewCircuitBreaker(names, cache, prober, health.BreakerOptions{
		Cooldown:     cfg.Health.Cooldown,
		ProbeTimeout: cfg.Health.ProbeTimeout,
		Logger:       logger,
		Metrics:      s.metrics,
	})

	s.gateway = NewRouter(RouterDeps{
		Gate:    authgate.New(cfg.PublicPrefixes, verifier, logger),
		Routes:  table,
		Health:  s.breaker,
		Relayer: forward.New(forward.Options{
			ConnectTimeout:  cfg.Upstream.ConnectTimeout,
			RequestTimeout:  cfg.Upstream.RequestTimeout,
			MaxResponseBody: cfg.Upstream.MaxResponseBody,
			Metrics:         s.metrics,
		}),
		Logger:         logger,
		Metrics:        s.metrics,
		MaxRequestBody: cfg.Upstream.MaxRequestBody,
	})

	s.engine = gin.New()
	// 転送対象のパスをGinにリダイレクトさせない
	s.engine.RedirectTrailingSlash = false
	s.engine.RedirectFixedPath = false
	s.engine.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.AccessLog(logger),
		middleware.CORS([]string{cfg.FrontendURL}),
	)
	s.setupRoutes()

	return s, nil
}

// newHealthStore はRedis URLが設定されていればRedis、なければメモリのストアを返す。
func (s *Server) newHealthStore(ctx context.Context) (health.Store, error) {
	if s.cfg.RedisURL == "" {
		s.logger.Warn("REDIS_URLが未設定のため、ヘルスキャッシュはプロセス内で保持します")
		return health.NewMemoryStore(), nil
	}
	client, err := health.DialRedis(ctx, s.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	s.redis = client
	return health.NewRedisStore(client, health.DefaultKeyPrefix), nil
}

// newVerifier は認証モードに応じた識別情報の検証者を返す。
func newVerifier(cfg *Config) (identity.Verifier, error) {
	switch cfg.Auth.Mode {
	case AuthModeRemote:
		u, err := url.Parse(cfg.Auth.VerifyURL)
		if err != nil {
			return nil, fmt.Errorf("auth.verify_url の解析に失敗: %w", err)
		}
		path := u.EscapedPath()
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		u.Path, u.RawPath, u.RawQuery = "", "", ""
		client := httpclient.New(u.String(), httpclient.Options{
			ConnectTimeout: cfg.Upstream.ConnectTimeout,
			Timeout:        cfg.Health.ProbeTimeout,
		})
		return identity.NewRemoteVerifier(client, path), nil
	case AuthModeJWT:
		return identity.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer), nil
	case AuthModeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("auth.mode が不明です: %q", cfg.Auth.Mode)
	}
}

// Handler はGinエンジンをhttp.Handlerとして返す。
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Upstream.RequestTimeout,
		WriteTimeout:      s.cfg.Upstream.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gatewayを起動します", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Gatewayをシャットダウンします")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("グレースフルシャットダウンに失敗: %w", err)
	}
	return nil
}

// Close は外部リソースを解放する。
func (s *Server) Close() {
	if s.redis == nil {
		return
	}
	if err := s.redis.Close(); err != nil {
		s.logger.Warn("Redis接続のクローズに失敗", zap.Error(err))
	}
	s.redis = nil
}

// setupRoutes はGateway自身のエンドポイントと、それ以外を転送するハンドラを設定する。
func (s *Server) setupRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.engine.GET("/services", s.handleListServices())
	s.engine.GET("/services/health", s.handleServicesHealth())
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.engine.NoRoute(s.handleProxy())
}

// serviceEntry は /services のレスポンス要素。
type serviceEntry struct {
	Prefix  string `json:"prefix"`
	Service string `json:"service"`
	URL     string `json:"url"`
}

// handleListServices は設定済みのルートと転送先URLを返すハンドラを返す。
func (s *Server) handleListServices() gin.HandlerFunc {
	return func(c *gin.Context) {
		routes := s.table.Routes()
		entries := make([]serviceEntry, 0, len(routes))
		for _, rt := range routes {
			ep, _ := s.table.Endpoint(rt.Service)
			entries = append(entries, serviceEntry{
				Prefix:  rt.Prefix,
				Service: rt.Service,
				URL:     ep.BaseURL,
			})
		}
		c.JSON(http.StatusOK, gin.H{"services": entries})
	}
}

// serviceHealth は /services/health のサービスごとの状態。
type serviceHealth struct {
	Healthy bool   `json:"healthy"`
	Breaker string `json:"breaker"`
}

// handleServicesHealth は全サービスの健全性を並行に確認するハンドラを返す。
// すべて健全なら200、一つでも不健全なら503を返す。
func (s *Server) handleServicesHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		endpoints := s.table.Endpoints()
		results := make([]serviceHealth, len(endpoints))

		var g errgroup.Group
		g.SetLimit(healthCheckConcurrency)
		for i, ep := range endpoints {
			g.Go(func() error {
				healthy := s.breaker.IsHealthy(ctx, ep.Name)
				state, _ := s.breaker.State(ep.Name)
				results[i] = serviceHealth{Healthy: healthy, Breaker: state}
				return nil
			})
		}
		_ = g.Wait()

		overall := true
		services := make(map[string]serviceHealth, len(endpoints))
		for i, ep := range endpoints {
			services[ep.Name] = results[i]
			overall = overall && results[i].Healthy
		}

		status, code := "healthy", http.StatusOK
		if !overall {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "services": services})
	}
}

// handleProxy はGateway自身のエンドポイント以外のリクエストを転送するハンドラを返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := middleware.GetRequestID(c)
		resp, gwErr := s.gateway.Route(c.Request, requestID)
		if gwErr != nil {
			writeError(c, gwErr, requestID)
			return
		}

		header := c.Writer.Header()
		for key, values := range resp.Header {
			if key == middleware.HeaderRequestID {
				continue
			}
			header[key] = slices.Clone(values)
		}
		c.Data(resp.StatusCode, resp.ContentType, resp.Body)
	}
}

// errorBody はGatewayエラーのレスポンスボディ。
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Service   string `json:"service,omitempty"`
	RequestID string `json:"request_id"`
}

// writeError はGatewayエラーをJSONで返す。内部の原因はクライアントに返さない。
func writeError(c *gin.Context, gwErr *gwerror.Error, requestID string) {
	c.AbortWithStatusJSON(gwErr.Status(), errorBody{
		Error:     gwErr.Message,
		Code:      gwErr.Kind.String(),
		Service:   gwErr.Service,
		RequestID: requestID,
	})
}
