// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// ハブ・キャッシュ・HTTP層それぞれが必要とする記録インターフェースを満たす。
type Collector struct {
	connectionsOpen   prometheus.Gauge
	connectionsTotal  prometheus.Counter
	eventsDelivered   *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	messagesPublished *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatline_live_connections",
			Help: "現在のライブ接続数",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatline_live_connections_total",
			Help: "ライブ接続の累計数",
		}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_events_delivered_total",
			Help: "配信されたライブイベントの合計数",
		}, []string{"event_type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_events_dropped_total",
			Help: "破棄されたライブイベントの合計数",
		}, []string{"event_type"}),
		messagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_messages_published_total",
			Help: "公開されたメッセージの合計数（経路別）",
		}, []string{"source"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_cache_hits_total",
			Help: "キャッシュヒットの合計数（キーファミリー別）",
		}, []string{"family"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_cache_misses_total",
			Help: "キャッシュミスの合計数（キーファミリー別）",
		}, []string{"family"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.connectionsOpen,
		c.connectionsTotal,
		c.eventsDelivered,
		c.eventsDropped,
		c.messagesPublished,
		c.cacheHits,
		c.cacheMisses,
		c.httpStatus,
	)

	return c
}

// RecordConnectionOpened はライブ接続の確立を記録する。
func (c *Collector) RecordConnectionOpened() {
	c.connectionsOpen.Inc()
	c.connectionsTotal.Inc()
}

// RecordConnectionClosed はライブ接続の切断を記録する。
func (c *Collector) RecordConnectionClosed() {
	c.connectionsOpen.Dec()
}

// RecordEventDelivered はライブイベントの配信成功を記録する。
func (c *Collector) RecordEventDelivered(eventType string) {
	c.eventsDelivered.WithLabelValues(eventType).Inc()
}

// RecordEventDropped はライブイベントの破棄を記録する。
func (c *Collector) RecordEventDropped(eventType string) {
	c.eventsDropped.WithLabelValues(eventType).Inc()
}

// RecordMessagePublished はメッセージ公開を経路別に記録する。
// sourceは"rest"または"live"。
func (c *Collector) RecordMessagePublished(source string) {
	c.messagesPublished.WithLabelValues(source).Inc()
}

// RecordCacheHit はキャッシュヒットをキーファミリー別に記録する。
func (c *Collector) RecordCacheHit(family string) {
	c.cacheHits.WithLabelValues(family).Inc()
}

// RecordCacheMiss はキャッシュミスをキーファミリー別に記録する。
func (c *Collector) RecordCacheMiss(family string) {
	c.cacheMisses.WithLabelValues(family).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
