// metrics.go - Prometheus metrics fed from the ledger event bus.
package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anoncoin/internal/events"
	"anoncoin/internal/ledger"
)

// Metrics owns a private registry so several daemons can run in one
// process during tests.
type Metrics struct {
	registry *prometheus.Registry

	blocks      *prometheus.CounterVec
	mints       *prometheus.CounterVec
	spends      prometheus.Counter
	rejects     *prometheus.CounterVec
	mempoolTxs  *prometheus.CounterVec
	connectTime prometheus.Histogram
	requests    *prometheus.CounterVec
	throttled   prometheus.Counter
}

// NewMetrics registers every collector. Gauges read state directly.
func NewMetrics(state *ledger.State) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anoncoin_blocks_total",
			Help: "Blocks connected and disconnected.",
		}, []string{"event"}),
		mints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anoncoin_mints_total",
			Help: "Coins added to anonymity sets, by pool.",
		}, []string{"pool"}),
		spends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anoncoin_spends_total",
			Help: "Serials confirmed by connected blocks.",
		}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anoncoin_rejects_total",
			Help: "Rejected transactions and blocks, by reject code.",
		}, []string{"code"}),
		mempoolTxs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anoncoin_mempool_events_total",
			Help: "Spend transactions entering and leaving the mempool.",
		}, []string{"event"}),
		connectTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "anoncoin_block_connect_seconds",
			Help:    "Time to validate and connect a block.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anoncoin_http_requests_total",
			Help: "HTTP requests by path and status.",
		}, []string{"path", "status"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anoncoin_http_throttled_total",
			Help: "Submissions refused by the rate limiter.",
		}),
	}

	startTime := time.Now()
	m.registry.MustRegister(
		m.blocks, m.mints, m.spends, m.rejects, m.mempoolTxs,
		m.connectTime, m.requests, m.throttled,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "anoncoin_uptime_seconds",
			Help: "Uptime of the daemon in seconds.",
		}, func() float64 {
			return time.Since(startTime).Seconds()
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "anoncoin_block_height",
			Help: "Height of the active chain.",
		}, func() float64 {
			return float64(state.Chain().Height())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "anoncoin_mempool_serials",
			Help: "Serials reserved by unconfirmed spends.",
		}, func() float64 {
			return float64(state.MempoolSize())
		}),
	)
	return m
}

// Observe counts bus events until the returned function is called.
func (m *Metrics) Observe(bus *events.Bus) func() {
	return bus.SubscribeAll(m.record)
}

func (m *Metrics) record(ev events.Event) {
	switch ev.Kind {
	case events.BlockConnected:
		m.blocks.WithLabelValues("connected").Inc()
	case events.BlockDisconnected:
		m.blocks.WithLabelValues("disconnected").Inc()
	case events.MintAdded:
		m.mints.WithLabelValues(ledger.Pool(ev.Denomination).String()).Inc()
	case events.SpendAccepted:
		m.spends.Inc()
	case events.SpendRejected:
		m.rejects.WithLabelValues(ev.Reason).Inc()
	case events.MempoolAdded:
		m.mempoolTxs.WithLabelValues("added").Inc()
	case events.MempoolRemoved:
		m.mempoolTxs.WithLabelValues("removed").Inc()
	}
}

// RecordConnect records how long a block took to connect.
func (m *Metrics) RecordConnect(d time.Duration) {
	m.connectTime.Observe(d.Seconds())
}

// RecordRequest counts an HTTP request.
func (m *Metrics) RecordRequest(path string, status int) {
	m.requests.WithLabelValues(path, http.StatusText(status)).Inc()
}

// RecordThrottled counts a request refused by the rate limiter.
func (m *Metrics) RecordThrottled() {
	m.throttled.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
