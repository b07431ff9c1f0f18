package forward

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/nao1215/shopgate/internal/gateway/gwerror"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/metrics"
)

// Options はForwarderの設定。
type Options struct {
	// ConnectTimeout は接続確立のタイムアウト。
	ConnectTimeout time.Duration
	// RequestTimeout はリクエスト全体（レスポンスボディの読み込みを含む）のタイムアウト。
	RequestTimeout time.Duration
	// MaxResponseBody はバッファするレスポンスボディの上限バイト数。0以下の場合はDefaultMaxResponseBody。
	MaxResponseBody int64
	// Metrics はメトリクス。nilの場合は記録しない。
	Metrics *metrics.Metrics
}

// DefaultMaxResponseBody はレスポンスボディの標準の上限。
const DefaultMaxResponseBody int64 = 32 << 20

// ErrResponseTooLarge はレスポンスボディが上限を超えたことを表す。
var ErrResponseTooLarge = errors.New("レスポンスボディが上限を超えています")

// Forwarder はリクエストをバックエンドサービスへ中継する。リトライは行わない。
type Forwarder struct {
	client          *http.Client
	timeout         time.Duration
	maxResponseBody int64
	metrics         *metrics.Metrics
}

// New は新しいForwarderを生成する。
func New(opts Options) *Forwarder {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = httpclient.DefaultTimeout
	}
	if opts.MaxResponseBody <= 0 {
		opts.MaxResponseBody = DefaultMaxResponseBody
	}
	return &Forwarder{
		// 全体タイムアウトはリクエストごとのcontextで与える
		client: httpclient.NewHTTPClient(httpclient.Options{
			ConnectTimeout: opts.ConnectTimeout,
		}),
		timeout:         opts.RequestTimeout,
		maxResponseBody: opts.MaxResponseBody,
		metrics:         opts.Metrics,
	}
}

// Relay は転送情報に従ってリクエストを送信し、レスポンスを変換して返す。
// 失敗した場合のエラーは常に *gwerror.Error である。
func (f *Forwarder) Relay(ctx context.Context, fctx *Context) (*Response, error) {
	relayCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var body io.Reader
	if fctx.Body != nil {
		body = bytes.NewReader(fctx.Body)
	}

	req, err := http.NewRequestWithContext(relayCtx, fctx.Method, fctx.TargetURL, body)
	if err != nil {
		return nil, gwerror.Internal(fctx.Service, err)
	}
	req.Header = fctx.Header.Clone()

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.fail(ctx, fctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxResponseBody+1))
	if err != nil {
		return nil, f.fail(ctx, fctx, err)
	}
	if int64(len(raw)) > f.maxResponseBody {
		f.metrics.IncError(fctx.Service, gwerror.KindUpstreamProtocolError.String())
		return nil, gwerror.Wrap(gwerror.KindUpstreamProtocolError, fctx.Service,
			"サービス "+fctx.Service+" のレスポンスが大きすぎます", ErrResponseTooLarge)
	}

	f.metrics.ObserveUpstream(fctx.Service, fctx.Method, resp.StatusCode, time.Since(start))
	return translateResponse(resp, raw), nil
}

// fail はエラーを分類し、メトリクスに記録する。
// 呼び出し元の切断による中断は転送先の障害として数えない。
func (f *Forwarder) fail(ctx context.Context, fctx *Context, err error) *gwerror.Error {
	gwErr := Classify(fctx.Service, err)
	if ClientCanceled(ctx, err) {
		f.metrics.IncError(fctx.Service, metrics.KindClientCanceled)
		return gwErr
	}
	f.metrics.IncError(fctx.Service, gwErr.Kind.String())
	return gwErr
}

// ClientCanceled はerrが呼び出し元のcontextのキャンセルによるものかを返す。
func ClientCanceled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) && errors.Is(ctx.Err(), context.Canceled)
}

// Classify はトランスポートレベルのエラーをGatewayエラーに変換する。
//
//   - 接続または全体のタイムアウト → UpstreamTimeout
//   - 接続拒否、名前解決失敗、その他の接続失敗 → UpstreamUnreachable
//   - その他のトランスポートエラー（呼び出し元による中断を含む） → UpstreamProtocolError
//   - 上記以外 → InternalError
func Classify(service string, err error) *gwerror.Error {
	var (
		netErr net.Error
		dnsErr *net.DNSError
		opErr  *net.OpError
		urlErr *url.Error
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return gwerror.Wrap(gwerror.KindUpstreamTimeout, service,
			"サービス "+service+" からの応答がタイムアウトしました", err)
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.As(err, &dnsErr),
		errors.As(err, &opErr) && opErr.Op == "dial":
		return gwerror.Wrap(gwerror.KindUpstreamUnreachable, service,
			"サービス "+service+" に接続できません", err)
	case errors.Is(err, context.Canceled),
		errors.As(err, &urlErr),
		errors.As(err, &netErr),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET):
		return gwerror.Wrap(gwerror.KindUpstreamProtocolError, service,
			"サービス "+service+" との通信でエラーが発生しました", err)
	default:
		return gwerror.Internal(service, err)
	}
}
