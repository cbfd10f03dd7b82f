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
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method string, statusCode int)
	RecordHTTPLatency(duration time.Duration)
	RecordLogin(success bool)
	RecordApplicationSubmitted()
	RecordApplicationDecided(decision string)
	RecordDocumentUploaded()
	RecordCensusRowsImported(count int)
	RecordRateLimited(scope string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests          *prometheus.CounterVec
	httpLatency           prometheus.Histogram
	loginSuccess          prometheus.Counter
	loginFail             prometheus.Counter
	applicationsSubmitted prometheus.Counter
	applicationsDecided   *prometheus.CounterVec
	documentsUploaded     prometheus.Counter
	censusRows            prometheus.Counter
	rateLimited           *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollhub_http_requests_total",
			Help: "HTTPメソッド・ステータスコード別のリクエスト数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrollhub_http_request_duration_seconds",
			Help:    "HTTPリクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollhub_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollhub_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		applicationsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollhub_applications_submitted_total",
			Help: "提出された申請の合計数",
		}),
		applicationsDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollhub_applications_decided_total",
			Help: "審査された申請の判定別合計数",
		}, []string{"decision"}),
		documentsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollhub_documents_uploaded_total",
			Help: "アップロードされた書類の合計数",
		}),
		censusRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollhub_census_rows_imported_total",
			Help: "一括取込で登録された従業員行の合計数",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollhub_rate_limited_total",
			Help: "レート制限で拒否されたリクエストのスコープ別合計数",
		}, []string{"scope"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.loginSuccess,
		c.loginFail,
		c.applicationsSubmitted,
		c.applicationsDecided,
		c.documentsUploaded,
		c.censusRows,
		c.rateLimited,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストをメソッド・ステータスコード別に記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordHTTPLatency(duration time.Duration) {
	c.httpLatency.Observe(duration.Seconds())
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	if success {
		c.loginSuccess.Inc()
	} else {
		c.loginFail.Inc()
	}
}

// RecordApplicationSubmitted は申請の提出を記録する。
func (c *Collector) RecordApplicationSubmitted() {
	c.applicationsSubmitted.Inc()
}

// RecordApplicationDecided は申請の判定を記録する。
func (c *Collector) RecordApplicationDecided(decision string) {
	c.applicationsDecided.WithLabelValues(decision).Inc()
}

// RecordDocumentUploaded は書類のアップロードを記録する。
func (c *Collector) RecordDocumentUploaded() {
	c.documentsUploaded.Inc()
}

// RecordCensusRowsImported は一括取込で登録された従業員行数を記録する。
func (c *Collector) RecordCensusRowsImported(count int) {
	c.censusRows.Add(float64(count))
}

// RecordRateLimited はレート制限による拒否をスコープ別に記録する。
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

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
