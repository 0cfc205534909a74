// Package metrics exposes the gateway's Prometheus instrumentation behind an
// explicit registry, so tests can construct isolated instances.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	latencyMs       *prometheus.HistogramVec
	streamsActive   prometheus.Gauge
	tokensTotal     *prometheus.CounterVec
	thinkingEntries prometheus.GaugeFunc
}

// New creates a metrics set. thinkingCacheLen reports the live size of the
// thinking-block cache; pass nil to skip that gauge.
func New(thinkingCacheLen func() int) *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbridge_requests_total",
			Help: "Total number of chat completion requests processed.",
		}, []string{"provider", "stream", "status"}),
		latencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatbridge_request_latency_ms",
			Help:    "Request latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}, []string{"provider", "stream", "status"}),
		streamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatbridge_streams_active",
			Help: "Number of currently open response streams.",
		}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbridge_tokens_total",
			Help: "Total tokens reported by upstream providers.",
		}, []string{"provider", "direction"}),
	}
	r.MustRegister(m.requestsTotal, m.latencyMs, m.streamsActive, m.tokensTotal)

	if thinkingCacheLen != nil {
		m.thinkingEntries = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chatbridge_thinking_cache_entries",
			Help: "Live entries in the thinking-block cache.",
		}, func() float64 { return float64(thinkingCacheLen()) })
		r.MustRegister(m.thinkingEntries)
	}

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(provider string, stream bool, status int, dur time.Duration) {
	s := strconv.Itoa(status)
	b := strconv.FormatBool(stream)
	m.requestsTotal.WithLabelValues(provider, b, s).Inc()
	m.latencyMs.WithLabelValues(provider, b, s).Observe(float64(dur.Milliseconds()))
}

func (m *Metrics) StreamOpened() { m.streamsActive.Inc() }
func (m *Metrics) StreamClosed() { m.streamsActive.Dec() }

func (m *Metrics) ObserveTokens(provider string, inputTokens, outputTokens int64) {
	if inputTokens > 0 {
		m.tokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.tokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}
