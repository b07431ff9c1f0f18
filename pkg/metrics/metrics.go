// Package metrics はGatewayのPrometheusメトリクスを提供する。
//
// グローバルレジストリを汚さないよう、Metricsごとに専用のレジストリを持つ。
// nilのMetricsに対する記録は何もしない。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

// KindClientCanceled は転送中に呼び出し元が切断したことを表すエラー種別のラベル。
// 転送先の障害とは区別して数える。
const KindClientCanceled = "client_canceled"

// otherMethod は標準以外のHTTPメソッドをまとめるラベル。
const otherMethod = "OTHER"

// Metrics はGatewayのメトリクス一式。
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	probesTotal     *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

// New は新しいレジストリにメトリクスを登録して返す。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of requests relayed to backend services",
			},
			[]string{"service", "method", "status_code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Duration of relayed requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of gateway errors by kind",
			},
			[]string{"service", "kind"},
		),
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_probes_total",
				Help:      "Total number of live health probes",
			},
			[]string{"service", "result"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.errorsTotal,
		m.probesTotal,
		m.breakerState,
	)
	return m
}

// Handler は /metrics 用のHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveUpstream は転送先へのリクエスト結果を記録する。
func (m *Metrics) ObserveUpstream(service, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(service, normalizeMethod(method), strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// IncError はGatewayエラーを記録する。
func (m *Metrics) IncError(service, kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(service, kind).Inc()
}

// IncProbe はヘルスプローブの結果を記録する。
func (m *Metrics) IncProbe(service string, healthy bool) {
	if m == nil {
		return
	}
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	m.probesTotal.WithLabelValues(service, result).Inc()
}

// SetBreakerState はサーキットブレーカーの状態を記録する。
func (m *Metrics) SetBreakerState(service string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(service).Set(float64(state))
}

// normalizeMethod はラベルの値が増え続けないよう、標準以外のメソッドをOTHERにまとめる。
func normalizeMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
		return method
	default:
		return otherMethod
	}
}
