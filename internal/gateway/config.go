package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/shopgate/internal/gateway/authgate"
	"github.com/nao1215/shopgate/internal/gateway/forward"
	"github.com/nao1215/shopgate/internal/gateway/health"
	"github.com/nao1215/shopgate/internal/gateway/routing"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/logger"
)

const (
	// AuthModeRemote は認証サービスにトークン検証を委譲するモード。
	AuthModeRemote = "remote"
	// AuthModeJWT はGateway内でHS256署名のJWTを検証するモード。
	AuthModeJWT = "jwt"
	// AuthModeNone は本人確認を行わないモード。認証必須パスはすべて401になる。
	AuthModeNone = "none"
)

// configEnvKey は設定ファイルのパスを指定する環境変数。
const configEnvKey = "GATEWAY_CONFIG"

// Config はGatewayの設定。起動時に一度だけ読み込み、以降は変更しない。
type Config struct {
	// Port はリッスンポート。
	Port string `yaml:"port"`
	// FrontendURL はCORSで許可するフロントエンドのオリジン。
	FrontendURL string `yaml:"frontend_url"`
	// RedisURL はヘルスキャッシュの共有ストア。空の場合はプロセス内メモリを使う。
	RedisURL string `yaml:"redis_url"`
	// Log はログ出力の設定。
	Log LogConfig `yaml:"log"`
	// Services はサービス名からベースURLへの対応。
	Services map[string]string `yaml:"services"`
	// Routes はパスプレフィックスからサービス名への対応。
	Routes []routing.Route `yaml:"routes"`
	// PublicPrefixes は認証不要のパスプレフィックス。
	PublicPrefixes []string `yaml:"public_prefixes"`
	// Auth は本人確認の設定。
	Auth AuthConfig `yaml:"auth"`
	// Health はヘルスキャッシュとサーキットブレーカーの設定。
	Health HealthConfig `yaml:"health"`
	// Upstream は転送先への接続設定。
	Upstream UpstreamConfig `yaml:"upstream"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig は本人確認の設定。
type AuthConfig struct {
	// Mode は remote/jwt/none のいずれか。
	Mode string `yaml:"mode"`
	// VerifyURL はremoteモードで使う検証エンドポイントの完全なURL。
	VerifyURL string `yaml:"verify_url"`
	// JWTSecret はjwtモードの署名鍵。
	JWTSecret string `yaml:"jwt_secret"`
	// JWTIssuer はjwtモードで要求するiss。空の場合は検証しない。
	JWTIssuer string `yaml:"jwt_issuer"`
}

// HealthConfig はヘルスキャッシュとサーキットブレーカーの設定。
type HealthConfig struct {
	HealthyTTL   time.Duration `yaml:"healthy_ttl"`
	UnhealthyTTL time.Duration `yaml:"unhealthy_ttl"`
	Cooldown     time.Duration `yaml:"cooldown"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// UpstreamConfig は転送先への接続設定。
type UpstreamConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxRequestBody は転送するリクエストボディの上限バイト数。超えた場合は413を返す。
	MaxRequestBody int64 `yaml:"max_request_body"`
	// MaxResponseBody はバッファするレスポンスボディの上限バイト数。
	MaxResponseBody int64 `yaml:"max_response_body"`
}

// DefaultConfig はストアフロントの標準構成を返す。
func DefaultConfig() *Config {
	return &Config{
		Port:        "8000",
		FrontendURL: "http://localhost:3000",
		Log: LogConfig{
			Level:  "info",
			Format: logger.FormatJSON,
		},
		Services: map[string]string{
			"auth":           "http://localhost:8001",
			"user":           "http://localhost:8002",
			"product":        "http://localhost:8003",
			"recommendation": "http://localhost:8004",
			"search":         "http://localhost:8005",
			"cart":           "http://localhost:8006",
			"order":          "http://localhost:8007",
			"payment":        "http://localhost:8008",
			"review":         "http://localhost:8009",
			"notification":   "http://localhost:8010",
			"analytics":      "http://localhost:8011",
		},
		Routes: []routing.Route{
			{Prefix: "/auth", Service: "auth"},
			{Prefix: "/users", Service: "user"},
			{Prefix: "/products", Service: "product"},
			{Prefix: "/categories", Service: "product"},
			{Prefix: "/products/featured", Service: "recommendation"},
			{Prefix: "/recommendations", Service: "recommendation"},
			{Prefix: "/search", Service: "search"},
			{Prefix: "/cart", Service: "cart"},
			{Prefix: "/orders", Service: "order"},
			{Prefix: "/payments", Service: "payment"},
			{Prefix: "/reviews", Service: "review"},
			{Prefix: "/notifications", Service: "notification"},
			{Prefix: "/analytics", Service: "analytics"},
		},
		PublicPrefixes: append([]string(nil), authgate.DefaultPublicPrefixes...),
		Auth: AuthConfig{
			Mode:      AuthModeRemote,
			VerifyURL: "http://localhost:8001/auth/verify",
		},
		Health: HealthConfig{
			HealthyTTL:   health.DefaultHealthyTTL,
			UnhealthyTTL: health.DefaultUnhealthyTTL,
			Cooldown:     health.DefaultCooldown,
			ProbeTimeout: health.DefaultProbeTimeout,
		},
		Upstream: UpstreamConfig{
			ConnectTimeout:  httpclient.DefaultConnectTimeout,
			RequestTimeout:  httpclient.DefaultTimeout,
			MaxRequestBody:  forward.DefaultMaxRequestBody,
			MaxResponseBody: forward.DefaultMaxResponseBody,
		},
	}
}

// LoadConfig は標準構成に設定ファイルと環境変数を順に適用した設定を返す。
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(configEnvKey); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // 運用者が指定したパス
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeYAML はYAMLを現在の設定に重ねる。
// servicesとroutesは指定された場合に丸ごと置き換える。
func (c *Config) decodeYAML(data []byte) error {
	defaults := c.Services
	c.Services = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}
	if c.Services == nil {
		c.Services = defaults
	}
	return nil
}

// applyEnv は環境変数による上書きを適用する。
func (c *Config) applyEnv() {
	c.Port = getEnvOr("PORT", c.Port)
	c.FrontendURL = getEnvOr("FRONTEND_URL", c.FrontendURL)
	c.RedisURL = getEnvOr("REDIS_URL", c.RedisURL)
	c.Log.Level = getEnvOr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOr("LOG_FORMAT", c.Log.Format)
	c.Auth.Mode = getEnvOr("AUTH_MODE", c.Auth.Mode)
	c.Auth.VerifyURL = getEnvOr("AUTH_VERIFY_URL", c.Auth.VerifyURL)
	c.Auth.JWTSecret = getEnvOr("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnvOr("JWT_ISSUER", c.Auth.JWTIssuer)

	for name, baseURL := range c.Services {
		c.Services[name] = getEnvOr(serviceEnvKey(name), baseURL)
	}
}

// serviceEnvKey はサービスのURLを上書きする環境変数名を返す。
// 例: "order" → "ORDER_SERVICE_URL"
func serviceEnvKey(name string) string {
	key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return key + "_SERVICE_URL"
}

// Validate は設定の整合性を検証する。
// ルートとサービスの整合性はルーティングテーブルの構築時に検証する。
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("portが空です"))
	}
	if len(c.Services) == 0 {
		errs = append(errs, errors.New("servicesが空です"))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"health.healthy_ttl", c.Health.HealthyTTL},
		{"health.unhealthy_ttl", c.Health.UnhealthyTTL},
		{"health.cooldown", c.Health.Cooldown},
		{"health.probe_timeout", c.Health.ProbeTimeout},
		{"upstream.connect_timeout", c.Upstream.ConnectTimeout},
		{"upstream.request_timeout", c.Upstream.RequestTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s は正の値である必要があります: %s", d.name, d.value))
		}
	}
	if c.Upstream.MaxRequestBody <= 0 {
		errs = append(errs, fmt.Errorf("upstream.max_request_body は正の値である必要があります: %d", c.Upstream.MaxRequestBody))
	}
	if c.Upstream.MaxResponseBody <= 0 {
		errs = append(errs, fmt.Errorf("upstream.max_response_body は正の値である必要があります: %d", c.Upstream.MaxResponseBody))
	}
	if c.Health.Cooldown > 0 && c.Health.Cooldown < c.Health.UnhealthyTTL {
		errs = append(errs, fmt.Errorf("health.cooldown (%s) は health.unhealthy_ttl (%s) 以上である必要があります",
			c.Health.Cooldown, c.Health.UnhealthyTTL))
	}

	switch c.Auth.Mode {
	case AuthModeRemote:
		if u, err := url.Parse(c.Auth.VerifyURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("auth.verify_url が不正です: %q", c.Auth.VerifyURL))
		}
	case AuthModeJWT:
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("jwtモードでは auth.jwt_secret が必要です"))
		}
	case AuthModeNone:
	default:
		errs = append(errs, fmt.Errorf("auth.mode が不明です: %q", c.Auth.Mode))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}
	return nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
