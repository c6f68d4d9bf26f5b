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
// サービス層、ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordTransition(transition, outcome string)
	RecordNotification(channel, outcome string)
	RecordHTTPStatus(statusCode int)
	RecordHTTPLatency(duration time.Duration)
	RecordOverdueScan(found int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	transitions    *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	httpLatency    prometheus.Histogram
	overdueFound   prometheus.Counter
	overdueLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foliora_borrow_transitions_total",
			Help: "貸出ライフサイクルの遷移試行数",
		}, []string{"transition", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foliora_notifications_total",
			Help: "通知の送信試行数",
		}, []string{"channel", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foliora_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "foliora_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		overdueFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "foliora_overdue_loans_found_total",
			Help: "返却期限切れとして検出された貸出の合計数",
		}),
		overdueLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "foliora_overdue_scan_duration_seconds",
			Help:    "返却期限切れスキャンの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.transitions,
		c.notifications,
		c.httpStatus,
		c.httpLatency,
		c.overdueFound,
		c.overdueLatency,
	)

	return c
}

// RecordTransition はライフサイクル遷移の結果を記録する。
func (c *Collector) RecordTransition(transition, outcome string) {
	c.transitions.WithLabelValues(transition, outcome).Inc()
}

// RecordNotification は通知送信の結果を記録する。
func (c *Collector) RecordNotification(channel, outcome string) {
	c.notifications.WithLabelValues(channel, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordHTTPLatency(duration time.Duration) {
	c.httpLatency.Observe(duration.Seconds())
}

// RecordOverdueScan は返却期限切れスキャンの結果を記録する。
func (c *Collector) RecordOverdueScan(found int, duration time.Duration) {
	c.overdueFound.Add(float64(found))
	c.overdueLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop は何も記録しないMetricsCollector。
type Noop struct{}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)

func (Noop) RecordTransition(string, string) {}
func (Noop) RecordNotification(string, string) {}
func (Noop) RecordHTTPStatus(int) {}
func (Noop) RecordHTTPLatency(time.Duration) {}
func (Noop) RecordOverdueScan(int, time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)
