// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスとHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(provider, result string)
	RecordLogout()
	RecordHTTPStatus(statusCode int)
	ObserveProviderLatency(provider string, duration time.Duration)
	RecordRateLimited()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	login           *prometheus.CounterVec
	logout          prometheus.Counter
	httpStatus      *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	rateLimited     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		login: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialprofile_login_total",
			Help: "プロバイダー・結果別のログイン試行数",
		}, []string{"provider", "result"}),
		logout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialprofile_logout_total",
			Help: "ログアウトの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialprofile_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "socialprofile_provider_latency_seconds",
			Help:    "IdPとのトークン交換・プロフィール取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialprofile_rate_limited_total",
			Help: "レート制限により拒否されたリクエスト数",
		}),
	}

	reg.MustRegister(
		c.login,
		c.logout,
		c.httpStatus,
		c.providerLatency,
		c.rateLimited,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。resultは"success"または失敗理由。
func (c *Collector) RecordLogin(provider, result string) {
	c.login.WithLabelValues(provider, result).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logout.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// ObserveProviderLatency はIdP呼び出しのレイテンシを記録する。
func (c *Collector) ObserveProviderLatency(provider string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
