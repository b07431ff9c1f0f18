package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestRecovery はRecoveryミドルウェアを検証する。
func TestRecovery(t *testing.T) {
	t.Parallel()

	panicValues := []struct {
		name  string
		value any
	}{
		{name: "文字列", value: "テスト用パニック"},
		{name: "整数", value: 42},
		{name: "error型", value: errors.New("想定外のエラー")},
	}

	for _, pv := range panicValues {
		t.Run(pv.name+"のパニックが内部エラーのJSONになること", func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.Use(RequestID(), Recovery(zap.NewNop()))
			router.POST("/panic", func(_ *gin.Context) {
				panic(pv.value)
			})

			req := httptest.NewRequest(http.MethodPost, "/panic", nil)
			req.Header.Set(HeaderRequestID, "req-panic")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusInternalServerError, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "内部サーバーエラーが発生しました", body["error"])
			assert.Equal(t, "internal_error", body["code"])
			assert.Equal(t, "req-panic", body["request_id"])
		})
	}

	t.Run("パニックがリクエストID付きでエラーログに記録されること", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zapcore.ErrorLevel)
		router := gin.New()
		router.Use(RequestID(), Recovery(zap.New(core)))
		router.GET("/panic", func(_ *gin.Context) {
			panic("ログ確認用パニック")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		req.Header.Set(HeaderRequestID, "req-log")
		router.ServeHTTP(httptest.NewRecorder(), req)

		require.Equal(t, 1, logs.Len())
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "req-log", fields["request_id"])
		assert.Equal(t, "/panic", fields["path"])
		assert.Equal(t, http.MethodGet, fields["method"])
	})

	t.Run("パニック後も次のリクエストを処理できること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery(nil))
		router.GET("/panic", func(_ *gin.Context) {
			panic("パニック発生")
		})
		router.GET("/ok", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "recovered"})
		})

		w1 := httptest.NewRecorder()
		router.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/panic", nil))
		assert.Equal(t, http.StatusInternalServerError, w1.Code)

		w2 := httptest.NewRecorder()
		router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/ok", nil))
		assert.Equal(t, http.StatusOK, w2.Code)
		assert.JSONEq(t, `{"status":"recovered"}`, w2.Body.String())
	})
}
