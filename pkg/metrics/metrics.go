package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	reg *prometheus.Registry

	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	ChainTx         *prometheus.CounterVec
	ChainLatencySec *prometheus.HistogramVec
	Divergence      prometheus.Counter
	OutboxRelayed   prometheus.Counter
}

func NewServerMetrics(service string) *ServerMetrics {
	reg := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "escrow",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
	}, []string{"handler"})
	chainTx := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: service,
		Name:      "chain_transactions_total",
		Help:      "Blockchain transactions by step and outcome.",
	}, []string{"step", "status"})
	chainLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "escrow",
		Subsystem: service,
		Name:      "chain_confirmation_seconds",
		Help:      "Time from submission to receipt.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120},
	}, []string{"step"})
	divergence := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: service,
		Name:      "divergence_total",
		Help:      "Confirmed chain transactions whose local commit failed.",
	})
	relayed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: service,
		Name:      "outbox_relayed_total",
		Help:      "Outbox records published to Kafka.",
	})

	reg.MustRegister(requests, latency, chainTx, chainLatency, divergence, relayed,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &ServerMetrics{
		reg:             reg,
		Requests:        requests,
		LatencyMS:       latency,
		ChainTx:         chainTx,
		ChainLatencySec: chainLatency,
		Divergence:      divergence,
		OutboxRelayed:   relayed,
	}
}

func (m *ServerMetrics) ObserveRequest(handler string, status int, start time.Time) {
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
}

// ObserveChainTx implements chain.Observer.
func (m *ServerMetrics) ObserveChainTx(step, status string, waited time.Duration) {
	m.ChainTx.WithLabelValues(step, status).Inc()
	if waited > 0 {
		m.ChainLatencySec.WithLabelValues(step).Observe(waited.Seconds())
	}
}

func (m *ServerMetrics) ObserveDivergence() {
	m.Divergence.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
