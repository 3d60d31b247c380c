// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/cleanroom/internal/model"
)

// MetricsCollector はメトリクス収集のインターフェース。
// オーバーラップサービス、キャッシュ、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordOverlapComputed(result model.OverlapResult, duration time.Duration)
	RecordOverlapFailure()
	RecordRefresh(success bool)
	RecordSnapshotAppended()
	RecordCacheHit()
	RecordCacheMiss()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	overlapComputed   prometheus.Counter
	overlapFail       prometheus.Counter
	overlapLatency    prometheus.Histogram
	overlapCount      prometheus.Gauge
	overlapPercent    prometheus.Gauge
	refreshes         *prometheus.CounterVec
	snapshotsAppended prometheus.Counter
	cacheRequests     *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		overlapComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cleanroom_overlap_computed_total",
			Help: "オーバーラップ計算成功の合計数",
		}),
		overlapFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cleanroom_overlap_fail_total",
			Help: "オーバーラップ計算失敗の合計数",
		}),
		overlapLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cleanroom_overlap_latency_seconds",
			Help:    "オーバーラップ計算のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		overlapCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cleanroom_overlap_count",
			Help: "直近に計算したオーバーラップ識別子数",
		}),
		overlapPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cleanroom_overlap_percent",
			Help: "直近に計算したオーバーラップ率（%）",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanroom_refresh_total",
			Help: "結果別のリフレッシュ実行数",
		}, []string{"result"}),
		snapshotsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cleanroom_snapshots_appended_total",
			Help: "履歴に追記したスナップショットの合計数",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanroom_cache_requests_total",
			Help: "オーバーラップキャッシュのヒット・ミス数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanroom_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.overlapComputed,
		c.overlapFail,
		c.overlapLatency,
		c.overlapCount,
		c.overlapPercent,
		c.refreshes,
		c.snapshotsAppended,
		c.cacheRequests,
		c.httpStatus,
	)

	return c
}

// RecordOverlapComputed は計算成功とレイテンシ、直近の結果を記録する。
func (c *Collector) RecordOverlapComputed(result model.OverlapResult, duration time.Duration) {
	c.overlapComputed.Inc()
	c.overlapLatency.Observe(duration.Seconds())
	c.overlapCount.Set(float64(result.OverlapCount))
	c.overlapPercent.Set(result.PercentOverlap)
}

// RecordOverlapFailure は計算失敗を記録する。
func (c *Collector) RecordOverlapFailure() {
	c.overlapFail.Inc()
}

// RecordRefresh はリフレッシュの結果を記録する。
func (c *Collector) RecordRefresh(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.refreshes.WithLabelValues(result).Inc()
}

// RecordSnapshotAppended はスナップショットの追記を記録する。
func (c *Collector) RecordSnapshotAppended() {
	c.snapshotsAppended.Inc()
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheRequests.WithLabelValues("hit").Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheRequests.WithLabelValues("miss").Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
