// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証イベント名。
const (
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventLogout         = "logout"
	EventSilentLogout   = "silent_logout"
	EventSessionExpired = "session_expired"
	EventVerifyFailed   = "verify_failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアント、認証マネージャー、ワーカーから利用する。
type MetricsCollector interface {
	// RecordBackendRequest はバックエンド呼び出しを記録する。応答がない場合statusCodeは0。
	RecordBackendRequest(method string, statusCode int, duration time.Duration)
	RecordAuthEvent(event string)
	RecordNotice(level string)
	RecordCredentialsPurged(count int64)
	SetActiveSessions(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendRequests  *prometheus.CounterVec
	backendLatency   prometheus.Histogram
	authEvents       *prometheus.CounterVec
	notices          *prometheus.CounterVec
	credentialsPurge prometheus.Counter
	activeSessions   prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "libraryfront_backend_requests_total",
			Help: "バックエンドAPI呼び出しの合計数（メソッド・ステータス別）",
		}, []string{"method", "status_code"}),
		backendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "libraryfront_backend_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "libraryfront_auth_events_total",
			Help: "認証イベントの合計数",
		}, []string{"event"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "libraryfront_notices_total",
			Help: "ユーザーに通知したメッセージの合計数",
		}, []string{"level"}),
		credentialsPurge: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "libraryfront_credentials_purged_total",
			Help: "期限切れで削除された資格情報の合計数",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "libraryfront_active_sessions",
			Help: "メモリ上に保持している認証マネージャーの数",
		}),
	}

	reg.MustRegister(
		c.backendRequests,
		c.backendLatency,
		c.authEvents,
		c.notices,
		c.credentialsPurge,
		c.activeSessions,
	)

	return c
}

// RecordBackendRequest はバックエンド呼び出しを記録する。
func (c *Collector) RecordBackendRequest(method string, statusCode int, duration time.Duration) {
	status := "none"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	c.backendRequests.WithLabelValues(method, status).Inc()
	c.backendLatency.Observe(duration.Seconds())
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

// RecordNotice は通知を記録する。
func (c *Collector) RecordNotice(level string) {
	c.notices.WithLabelValues(level).Inc()
}

// RecordCredentialsPurged は削除された資格情報数を記録する。
func (c *Collector) RecordCredentialsPurged(count int64) {
	c.credentialsPurge.Add(float64(count))
}

// SetActiveSessions は保持中の認証マネージャー数を設定する。
func (c *Collector) SetActiveSessions(count int) {
	c.activeSessions.Set(float64(count))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordBackendRequest(string, int, time.Duration) {}
func (Nop) RecordAuthEvent(string)                          {}
func (Nop) RecordNotice(string)                             {}
func (Nop) RecordCredentialsPurged(int64)                   {}
func (Nop) SetActiveSessions(int)                           {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
