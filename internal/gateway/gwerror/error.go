// Package gwerror はGatewayがクライアントへ返すエラーの分類を定義する。
//
// Gateway内部で発生したすべての失敗は、クライアントに到達する前に
// いずれか1つのKindへ分類される。生の内部エラーを外部へ漏らさない。
package gwerror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind はGatewayエラーの種類を表す。
type Kind int

const (
	// KindAuthRequired は認証が必要なパスに識別情報なしでアクセスされたことを表す。
	KindAuthRequired Kind = iota + 1
	// KindRouteNotFound はパスに一致するルートが存在しないことを表す。
	KindRouteNotFound
	// KindServiceUnavailable はサーキットブレーカーが転送先を不健全と判定したことを表す。
	KindServiceUnavailable
	// KindUpstreamTimeout は転送先への接続またはリクエスト全体がタイムアウトしたことを表す。
	KindUpstreamTimeout
	// KindUpstreamUnreachable は転送先へ接続できなかったこと（接続拒否、名前解決失敗）を表す。
	KindUpstreamUnreachable
	// KindUpstreamProtocolError はその他のトランスポートレベルのエラーを表す。
	KindUpstreamProtocolError
	// KindInternal はGateway自身の不具合を表す。
	KindInternal
	// KindPayloadTooLarge はリクエストボディが上限を超えたことを表す。
	KindPayloadTooLarge
)

// String はKindの機械可読な識別子を返す。レスポンスボディの "code" に使用する。
func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindRouteNotFound:
		return "route_not_found"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamUnreachable:
		return "upstream_unreachable"
	case KindUpstreamProtocolError:
		return "upstream_protocol_error"
	case KindInternal:
		return "internal_error"
	case KindPayloadTooLarge:
		return "payload_too_large"
	default:
		return "unknown"
	}
}

// Status はKindに対応するHTTPステータスコードを返す。
func (k Kind) Status() int {
	switch k {
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindRouteNotFound:
		return http.StatusNotFound
	case KindServiceUnavailable, KindUpstreamUnreachable, KindUpstreamProtocolError:
		return http.StatusServiceUnavailable
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError はクライアント起因（4xx）のエラーであればtrueを返す。
// クライアント起因のエラーはGatewayの障害としてログに記録しない。
func (k Kind) IsClientError() bool {
	return k == KindAuthRequired || k == KindRouteNotFound || k == KindPayloadTooLarge
}

// IsUpstream は転送先サービス起因のエラーであればtrueを返す。
func (k Kind) IsUpstream() bool {
	switch k {
	case KindServiceUnavailable, KindUpstreamTimeout, KindUpstreamUnreachable, KindUpstreamProtocolError:
		return true
	default:
		return false
	}
}

// Error はGatewayエラーを表す。
type Error struct {
	// Kind はエラーの種類。
	Kind Kind
	// Message はクライアントに返す人間向けのメッセージ。
	Message string
	// Service は関係するサービス名。特定できない場合は空。
	Service string
	// Cause は元となったエラー。クライアントには返さない。
	Cause error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.Service != "" {
		msg += " (service=" + e.Service + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap は元となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Cause
}

// Status はHTTPステータスコードを返す。
func (e *Error) Status() int {
	return e.Kind.Status()
}

// New は新しいGatewayエラーを生成する。
func New(kind Kind, service, message string) *Error {
	return &Error{Kind: kind, Service: service, Message: message}
}

// Wrap は元となったエラーを保持したGatewayエラーを生成する。
func Wrap(kind Kind, service, message string, cause error) *Error {
	return &Error{Kind: kind, Service: service, Message: message, Cause: cause}
}

// AuthRequired は認証必須エラーを生成する。
func AuthRequired() *Error {
	return New(KindAuthRequired, "", "認証が必要です")
}

// RouteNotFound はルート未検出エラーを生成する。
func RouteNotFound(path string) *Error {
	return New(KindRouteNotFound, "", fmt.Sprintf("パス %s に対応するサービスがありません", path))
}

// ServiceUnavailable は転送先サービスが利用不可であることを示すエラーを生成する。
func ServiceUnavailable(service string) *Error {
	return New(KindServiceUnavailable, service, fmt.Sprintf("サービス %s は現在利用できません", service))
}

// PayloadTooLarge はリクエストボディが上限を超えたことを示すエラーを生成する。
func PayloadTooLarge(service string, limit int64, cause error) *Error {
	return Wrap(KindPayloadTooLarge, service,
		fmt.Sprintf("リクエストボディが上限の %d バイトを超えています", limit), cause)
}

// Internal はGateway内部エラーを生成する。
func Internal(service string, cause error) *Error {
	return Wrap(KindInternal, service, "内部サーバーエラーが発生しました", cause)
}

// As はerrからGatewayエラーを取り出す。
// Gatewayエラーでない場合はKindInternalでラップして返すため、戻り値は常に非nil（errがnilの場合を除く）。
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return Internal("", err)
}
