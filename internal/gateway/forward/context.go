// Package forward は受信したリクエストをバックエンドサービスへ中継する。
//
// 送信リクエストの再構築（ヘッダー、ボディ、クエリ文字列）、信頼境界ヘッダーの付与、
// トランスポートレベルの失敗のGatewayエラーへの変換、
// Content-Typeに応じたレスポンスの変換を担当する。
package forward

import (
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/nao1215/shopgate/internal/gateway/routing"
	"github.com/nao1215/shopgate/pkg/identity"
)

// 信頼境界ヘッダー。バックエンドサービスはGatewayだけがこれらを設定すると信頼する。
const (
	HeaderRequestID = "X-Request-ID"
	HeaderClientIP  = "X-Client-IP"
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

// DefaultMaxRequestBody はリクエストボディの標準の上限。
const DefaultMaxRequestBody int64 = 10 << 20

// Context はリクエスト1件分の転送情報。
// リクエスト受信時に生成され、レスポンス書き込み後に破棄される。リクエスト間で共有しない。
type Context struct {
	// RequestID はリクエストの識別子。
	RequestID string
	// ClientIP は呼び出し元のIPアドレス。
	ClientIP string
	// Identity は解決された呼び出し元。未認証の場合はnil。
	Identity *identity.Identity
	// Service は転送先のサービス名。
	Service string
	// Method はHTTPメソッド。
	Method string
	// TargetURL は転送先のURL。
	TargetURL string
	// Header は転送するリクエストヘッダー。
	Header http.Header
	// Body は転送するリクエストボディ。ボディを持たないメソッドではnil。
	Body []byte
}

// BodyReadError はボディの読み込みに失敗した場合にNewContextが返す警告。
// ボディなしとして転送を続行できる。
type BodyReadError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *BodyReadError) Error() string {
	return "リクエストボディの読み込みに失敗: " + e.Err.Error()
}

// Unwrap は元となったエラーを返す。
func (e *BodyReadError) Unwrap() error {
	return e.Err
}

// NewContext は受信リクエストから転送情報を生成する。
// パスとクエリ文字列は再エンコードせずにそのまま使う。
// ボディの読み込みに失敗した場合もContextは返され、ボディなしで転送できる。
func NewContext(r *http.Request, ep routing.ServiceEndpoint, requestID string, id *identity.Identity) (*Context, error) {
	clientIP := ClientIP(r)
	fctx := &Context{
		RequestID: requestID,
		ClientIP:  clientIP,
		Identity:  id,
		Service:   ep.Name,
		Method:    r.Method,
		TargetURL: TargetURL(ep.BaseURL, r),
		Header:    outboundHeader(r.Header, requestID, clientIP, id),
	}

	var warn error
	if hasBody(r.Method) && r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			warn = &BodyReadError{Err: err}
		} else {
			fctx.Body = body
		}
	}
	return fctx, warn
}

// TargetURL は転送先URLを組み立てる。
func TargetURL(baseURL string, r *http.Request) string {
	target := baseURL + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}

// ClientIP はX-Forwarded-Forの先頭、なければ接続元アドレスを返す。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// hasBody はボディを転送するメソッドかを返す。
func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// outboundHeader は転送用のヘッダーを組み立てる。
// HostとContent-Lengthは送信側で再計算されるため除去する。
// Accept-Encodingはトランスポートに任せ、圧縮されたレスポンスを透過的に展開させる。
// 呼び出し元が送ってきた信頼境界ヘッダーは必ず破棄し、Gatewayが設定したものだけを送る。
func outboundHeader(in http.Header, requestID, clientIP string, id *identity.Identity) http.Header {
	h := in.Clone()
	if h == nil {
		h = make(http.Header)
	}
	removeHopHeaders(h)
	h.Del("Host")
	h.Del("Content-Length")
	h.Del("Accept-Encoding")
	h.Del(HeaderUserID)
	h.Del(HeaderUserRoles)

	h.Set(HeaderRequestID, requestID)
	h.Set(HeaderClientIP, clientIP)
	if id != nil {
		h.Set(HeaderUserID, id.UserID)
		h.Set(HeaderUserRoles, id.RolesHeader())
	}
	return h
}
