package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the realtime core.
type Metrics struct {
	Reconnects       prometheus.Counter
	MessagesSent     prometheus.Counter
	MessagesEnqueued prometheus.Counter
	MessagesFailed   prometheus.Counter
	Errors           *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	ConnectionState  prometheus.Gauge
	PingLatency      prometheus.Histogram
}

// New registers the realtime collectors on reg (nil uses the default
// registerer).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "realtime",
			Name:      "reconnects_total",
			Help:      "Reconnection attempts made by the orchestrator.",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "realtime",
			Name:      "messages_sent_total",
			Help:      "Messages delivered over the transport.",
		}),
		MessagesEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "realtime",
			Name:      "messages_enqueued_total",
			Help:      "Messages buffered while offline or after send failure.",
		}),
		MessagesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "realtime",
			Name:      "messages_failed_total",
			Help:      "Messages moved to the failed set after exhausting retries.",
		}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realtime",
			Name:      "errors_total",
			Help:      "Classified failures by type.",
		}, []string{"type"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "realtime",
			Name:      "queue_depth",
			Help:      "Pending outbound messages.",
		}),
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "realtime",
			Name:      "connection_state",
			Help:      "Current orchestrator state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 error).",
		}),
		PingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "realtime",
			Name:      "ping_latency_seconds",
			Help:      "Health-check round trip latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Serve exposes the metrics endpoint. Blocks until the listener fails.
func Serve(port int, path string, gatherer prometheus.Gatherer) error {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
