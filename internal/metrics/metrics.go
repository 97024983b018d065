// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alphafeed/internal/news"
)

// Recorder receives pipeline measurements from the feed client, the hub
// and the orchestrator.
type Recorder interface {
	FrameReceived()
	FrameDropped()
	NewsBroadcast()
	NewsPersistFailed()
	AlertTriggered()
	AlertPersistFailed()
	Reconnect(delay time.Duration)
	FeedStatus(status news.ConnectionStatus)
	PeersConnected(n int)
}

var statuses = []news.ConnectionStatus{news.StatusConnected, news.StatusReconnecting, news.StatusDisconnected}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	framesReceived   prometheus.Counter
	framesDropped    prometheus.Counter
	newsBroadcast    prometheus.Counter
	newsPersistFail  prometheus.Counter
	alertsTriggered  prometheus.Counter
	alertPersistFail prometheus.Counter
	reconnects       prometheus.Counter
	reconnectDelay   prometheus.Histogram
	feedStatus       *prometheus.GaugeVec
	peersConnected   prometheus.Gauge
}

// NewCollector builds a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphafeed_frames_received_total",
			Help: "Upstream frames read from the feed connection.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphafeed_frames_dropped_total",
			Help: "Upstream frames rejected by the validation gate.",
		}),
		newsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphafeed_news_broadcast_total",
			Help: "News items pushed to connected clients.",
		}),
		newsPersistFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphafeed_news_persist_failures_total",
			Help: "News items that could not be stored.",
		}),
		alertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphafeed_alerts_triggered_total",
			Help: "Alert events persisted and broadcast.",
		}),
		alertPersistFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphafeed_alert_persist_failures_total",
			Help: "Alert matches that could not be stored.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphafeed_feed_reconnects_total",
			Help: "Reconnect attempts scheduled by the feed client.",
		}),
		reconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alphafeed_feed_reconnect_delay_seconds",
			Help:    "Backoff delay applied before each reconnect.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 60},
		}),
		feedStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alphafeed_feed_status",
			Help: "1 for the current upstream connection status, 0 otherwise.",
		}, []string{"status"}),
		peersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alphafeed_peers_connected",
			Help: "Downstream websocket peers currently registered.",
		}),
	}

	reg.MustRegister(
		c.framesReceived,
		c.framesDropped,
		c.newsBroadcast,
		c.newsPersistFail,
		c.alertsTriggered,
		c.alertPersistFail,
		c.reconnects,
		c.reconnectDelay,
		c.feedStatus,
		c.peersConnected,
	)

	return c
}

func (c *Collector) FrameReceived()       { c.framesReceived.Inc() }
func (c *Collector) FrameDropped()        { c.framesDropped.Inc() }
func (c *Collector) NewsBroadcast()       { c.newsBroadcast.Inc() }
func (c *Collector) NewsPersistFailed()   { c.newsPersistFail.Inc() }
func (c *Collector) AlertTriggered()      { c.alertsTriggered.Inc() }
func (c *Collector) AlertPersistFailed()  { c.alertPersistFail.Inc() }
func (c *Collector) PeersConnected(n int) { c.peersConnected.Set(float64(n)) }

// Reconnect counts a scheduled reconnect and its delay.
func (c *Collector) Reconnect(delay time.Duration) {
	c.reconnects.Inc()
	c.reconnectDelay.Observe(delay.Seconds())
}

// FeedStatus flips the status gauge to the given state.
func (c *Collector) FeedStatus(status news.ConnectionStatus) {
	for _, s := range statuses {
		value := 0.0
		if s == status {
			value = 1
		}
		c.feedStatus.WithLabelValues(string(s)).Set(value)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) FrameReceived()                   {}
func (Nop) FrameDropped()                    {}
func (Nop) NewsBroadcast()                   {}
func (Nop) NewsPersistFailed()               {}
func (Nop) AlertTriggered()                  {}
func (Nop) AlertPersistFailed()              {}
func (Nop) Reconnect(time.Duration)          {}
func (Nop) FeedStatus(news.ConnectionStatus) {}
func (Nop) PeersConnected(int)               {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
