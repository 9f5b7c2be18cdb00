package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ChatRequests       *prometheus.CounterVec
	TranscriptResets   prometheus.Counter
	GatewayErrors      *prometheus.CounterVec
	GatewayLatency     prometheus.Histogram
	ActiveProjectLocks prometheus.Gauge
	WSMessages         *prometheus.CounterVec

	latency *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ChatRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat exchanges by outcome.",
		}, []string{"outcome"}),
		TranscriptResets: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_resets_total",
			Help:      "Transcripts cleared by a reset request.",
		}),
		GatewayErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Completion gateway errors by provider and code.",
		}, []string{"provider", "code"}),
		GatewayLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_latency_ms",
			Help:      "Completion gateway round trip in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
		ActiveProjectLocks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_project_locks",
			Help:      "Projects with an exchange in flight or waiting.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		latency: newLatencyWindow(256),
	}
}

func (m *Metrics) ObserveGatewayLatency(d time.Duration) {
	m.GatewayLatency.Observe(float64(d.Milliseconds()))
	m.latency.Observe(StageGatewayComplete, d)
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.latency.Observe(stage, d)
}

// SetActiveLocks records how many projects have an exchange holding or
// waiting on their lock.
func (m *Metrics) SetActiveLocks(n int) {
	m.ActiveProjectLocks.Set(float64(n))
}

func (m *Metrics) SnapshotLatency() LatencySnapshot {
	return m.latency.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
