package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultConnectTimeout はTCP接続確立のデフォルトタイムアウト。
	DefaultConnectTimeout = 2 * time.Second
	// DefaultTimeout はリクエスト全体のデフォルトタイムアウト。
	DefaultTimeout = 30 * time.Second
)

// Options はHTTPクライアントのタイムアウト設定。
type Options struct {
	// ConnectTimeout はTCP接続確立（名前解決を含む）のタイムアウト。
	ConnectTimeout time.Duration
	// Timeout はリクエスト全体のタイムアウト。0の場合は呼び出し側のcontextに委ねる。
	Timeout time.Duration
	// FollowRedirects がfalseの場合、3xxレスポンスをそのまま返す。
	FollowRedirects bool
}

// NewHTTPClient は接続タイムアウトと全体タイムアウトを独立に持つhttp.Clientを生成する。
// 接続の遅延とアプリケーション応答の遅延を区別して診断できるようにするため、
// 接続タイムアウトはDialerに、全体タイムアウトはClientに設定する。
func NewHTTPClient(opts Options) *http.Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = opts.ConnectTimeout
	transport.MaxIdleConnsPerHost = 32

	client := &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// Client はサービス間通信用のHTTPクライアント。
// 接続先サービスのベースURLとタイムアウトの設定を持つ。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://auth:8001"）を指定する。
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		httpClient: NewHTTPClient(opts),
		baseURL:    baseURL,
	}
}

// BaseURL は接続先サービスのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
// 2xx以外のステータスは *StatusError として返す。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// Ping は指定パスにGETリクエストを送信し、ステータスコードを返す。
// レスポンスボディは読み捨てる。ヘルスチェックに使用する。
func (c *Client) Ping(ctx context.Context, path string) (int, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	return resp.StatusCode, nil
}

// newRequest はコンテキストの情報を反映したリクエストを生成する。
func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}

	// コンテキストからBearerトークンとリクエストIDを伝播する
	if token, ok := ctx.Value(contextKeyBearerToken).(string); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok && requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	return req, nil
}

// StatusError は2xx以外のレスポンスを表すエラー。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディの先頭部分。
	Body string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, e.Body)
}

// contextKey はコンテキストキーの型。
type contextKey string

const (
	// contextKeyBearerToken はコンテキストにBearerトークンを格納するためのキー。
	contextKeyBearerToken contextKey = "bearer_token"
	// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
	contextKeyRequestID contextKey = "request_id"
)

// WithBearerToken はコンテキストにBearerトークンを設定する。
// 識別情報の検証を外部サービスに委譲する際に使用する。
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeyBearerToken, token)
}

// WithRequestID はコンテキストにリクエストIDを設定する。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
