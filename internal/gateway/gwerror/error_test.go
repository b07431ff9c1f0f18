package gwerror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestKind はKindごとのステータスコードと分類を検証する。
func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind     Kind
		status   int
		code     string
		client   bool
		upstream bool
	}{
		{KindAuthRequired, http.StatusUnauthorized, "auth_required", true, false},
		{KindRouteNotFound, http.StatusNotFound, "route_not_found", true, false},
		{KindServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable", false, true},
		{KindUpstreamTimeout, http.StatusGatewayTimeout, "upstream_timeout", false, true},
		{KindUpstreamUnreachable, http.StatusServiceUnavailable, "upstream_unreachable", false, true},
		{KindUpstreamProtocolError, http.StatusServiceUnavailable, "upstream_protocol_error", false, true},
		{KindInternal, http.StatusInternalServerError, "internal_error", false, false},
		{KindPayloadTooLarge, http.StatusRequestEntityTooLarge, "payload_too_large", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.status, tt.kind.Status())
			assert.Equal(t, tt.code, tt.kind.String())
			assert.Equal(t, tt.client, tt.kind.IsClientError())
			assert.Equal(t, tt.upstream, tt.kind.IsUpstream())
		})
	}

	t.Run("未定義のKindは500として扱われること", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, http.StatusInternalServerError, Kind(0).Status())
		assert.Equal(t, "unknown", Kind(0).String())
	})
}

// TestError はErrorのメッセージとラップ動作を検証する。
func TestError(t *testing.T) {
	t.Parallel()

	t.Run("サービス名と原因がメッセージに含まれること", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("dial tcp: connection refused")
		err := Wrap(KindUpstreamUnreachable, "order", "接続できません", cause)

		assert.Contains(t, err.Error(), "upstream_unreachable")
		assert.Contains(t, err.Error(), "service=order")
		assert.Contains(t, err.Error(), "connection refused")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, http.StatusServiceUnavailable, err.Status())
	})

	t.Run("PayloadTooLargeが上限と原因を保持すること", func(t *testing.T) {
		t.Parallel()

		cause := &http.MaxBytesError{Limit: 1024}
		err := PayloadTooLarge("order", 1024, cause)
		assert.Equal(t, KindPayloadTooLarge, err.Kind)
		assert.Equal(t, "order", err.Service)
		assert.Contains(t, err.Message, "1024")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, http.StatusRequestEntityTooLarge, err.Status())
	})

	t.Run("ServiceUnavailableがサービス名を保持すること", func(t *testing.T) {
		t.Parallel()

		err := ServiceUnavailable("payment")
		assert.Equal(t, KindServiceUnavailable, err.Kind)
		assert.Equal(t, "payment", err.Service)
	})
}

// TestAs はAs関数の変換を検証する。
func TestAs(t *testing.T) {
	t.Parallel()

	t.Run("nilはnilのまま返ること", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, As(nil))
	})

	t.Run("ラップされたGatewayエラーを取り出せること", func(t *testing.T) {
		t.Parallel()

		orig := RouteNotFound("/unknown")
		got := As(fmt.Errorf("wrapped: %w", orig))
		require.NotNil(t, got)
		assert.Same(t, orig, got)
	})

	t.Run("Gatewayエラー以外はInternalになること", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("boom")
		got := As(cause)
		require.NotNil(t, got)
		assert.Equal(t, KindInternal, got.Kind)
		assert.ErrorIs(t, got, cause)
	})
}
