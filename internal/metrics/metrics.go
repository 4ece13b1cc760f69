// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/cybershield/internal/model"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordAuthFailure(reason string)
	ObserveTransition(from, to model.ArticleStatus)
	RecordUpload(result string, size int64)
}

// アップロード結果のラベル値
const (
	UploadAccepted = "accepted"
	UploadRejected = "rejected"
	UploadFailed   = "failed"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	authFailures   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadBytes    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybershield_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cybershield_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybershield_auth_failures_total",
			Help: "認証・認可の失敗数（理由別）",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybershield_article_transitions_total",
			Help: "記事の状態遷移数",
		}, []string{"from", "to"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybershield_uploads_total",
			Help: "画像アップロード数（結果別）",
		}, []string{"result"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cybershield_upload_bytes_total",
			Help: "保存された画像の合計バイト数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.authFailures,
		c.transitions,
		c.uploads,
		c.uploadBytes,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordAuthFailure は認証・認可の失敗を記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// ObserveTransition は記事の状態遷移を記録する。
func (c *Collector) ObserveTransition(from, to model.ArticleStatus) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordUpload はアップロード結果を記録する。acceptedの場合のみバイト数を加算する。
func (c *Collector) RecordUpload(result string, size int64) {
	c.uploads.WithLabelValues(result).Inc()
	if result == UploadAccepted && size > 0 {
		c.uploadBytes.Add(float64(size))
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
