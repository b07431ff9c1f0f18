package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/shopgate/internal/gateway/routing"
)

// TestHTTPProber はHTTPProberを検証する。
func TestHTTPProber(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == ProbePath {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(healthy.Close)

	degraded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(degraded.Close)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slow.Close)

	prober := NewHTTPProber([]routing.ServiceEndpoint{
		{Name: "order", BaseURL: healthy.URL},
		{Name: "payment", BaseURL: degraded.URL},
		{Name: "review", BaseURL: slow.URL},
		{Name: "cart", BaseURL: "http://127.0.0.1:1"},
	}, 100*time.Millisecond, 50*time.Millisecond)

	t.Run("200を返すサービスは健全であること", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, prober.Probe(context.Background(), "order"))
	})

	t.Run("200以外を返すサービスは不健全であること", func(t *testing.T) {
		t.Parallel()

		assert.ErrorIs(t, prober.Probe(context.Background(), "payment"), ErrUnhealthy)
	})

	t.Run("応答が遅いサービスはタイムアウトで不健全になること", func(t *testing.T) {
		t.Parallel()

		start := time.Now()
		assert.Error(t, prober.Probe(context.Background(), "review"))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("接続できないサービスは不健全であること", func(t *testing.T) {
		t.Parallel()

		assert.Error(t, prober.Probe(context.Background(), "cart"))
	})

	t.Run("未定義のサービスはエラーになること", func(t *testing.T) {
		t.Parallel()

		assert.ErrorIs(t, prober.Probe(context.Background(), "unknown"), ErrUnknownService)
	})
}
