package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nao1215/shopgate/internal/gateway/routing"
	"github.com/nao1215/shopgate/pkg/httpclient"
)

const (
	// DefaultProbeTimeout はヘルスプローブのデフォルトタイムアウト。
	DefaultProbeTimeout = 3 * time.Second
	// ProbePath はバックエンドサービスのヘルスチェックエンドポイント。
	ProbePath = "/health"
)

var (
	// ErrUnknownService はプローブ対象が未定義のサービスであることを表す。
	ErrUnknownService = errors.New("未定義のサービスです")
	// ErrUnhealthy はヘルスエンドポイントが200以外を返したことを表す。
	ErrUnhealthy = errors.New("ヘルスチェックが200以外を返しました")
)

// Prober はサービスの生存確認を行う。
type Prober interface {
	// Probe はサービスが健全ならnilを返す。
	Probe(ctx context.Context, service string) error
}

// HTTPProber は GET {baseURL}/health によるProber。
type HTTPProber struct {
	clients map[string]*httpclient.Client
}

// NewHTTPProber はエンドポイントごとにタイムアウト付きクライアントを持つHTTPProberを生成する。
func NewHTTPProber(endpoints []routing.ServiceEndpoint, connectTimeout, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	clients := make(map[string]*httpclient.Client, len(endpoints))
	for _, ep := range endpoints {
		clients[ep.Name] = httpclient.New(ep.BaseURL, httpclient.Options{
			ConnectTimeout: connectTimeout,
			Timeout:        timeout,
		})
	}
	return &HTTPProber{clients: clients}
}

// Probe はヘルスエンドポイントが200を返すかを確認する。
func (p *HTTPProber) Probe(ctx context.Context, service string) error {
	client, ok := p.clients[service]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	status, err := client.Ping(ctx, ProbePath)
	if err != nil {
		return fmt.Errorf("サービス %s (%s) のヘルスチェックに失敗: %w", service, client.BaseURL(), err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: service=%s, status=%d", ErrUnhealthy, service, status)
	}
	return nil
}
