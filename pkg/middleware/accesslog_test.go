package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestAccessLog はAccessLogミドルウェアを検証する。
func TestAccessLog(t *testing.T) {
	t.Parallel()

	t.Run("リクエストごとに1行のアクセスログが出力されること", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zapcore.InfoLevel)
		router := gin.New()
		router.Use(RequestID(), AccessLog(zap.New(core)))
		router.POST("/orders", func(c *gin.Context) {
			c.String(http.StatusCreated, "created")
		})

		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.Header.Set(HeaderRequestID, "req-log")
		router.ServeHTTP(httptest.NewRecorder(), req)

		if logs.Len() != 1 {
			t.Fatalf("ログ件数 = %d, want 1", logs.Len())
		}
		fields := logs.All()[0].ContextMap()
		if fields["method"] != http.MethodPost {
			t.Errorf("method = %v, want %q", fields["method"], http.MethodPost)
		}
		if fields["path"] != "/orders" {
			t.Errorf("path = %v, want %q", fields["path"], "/orders")
		}
		if fields["status"] != int64(http.StatusCreated) {
			t.Errorf("status = %v, want %d", fields["status"], http.StatusCreated)
		}
		if fields["request_id"] != "req-log" {
			t.Errorf("request_id = %v, want %q", fields["request_id"], "req-log")
		}
	})

	t.Run("nilロガーでもハンドラーが実行されること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(AccessLog(nil))
		router.GET("/ok", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})
}
