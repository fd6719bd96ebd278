package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vrtctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vrtctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	datagramsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vrtctl",
			Subsystem: "session",
			Name:      "datagrams_sent_total",
			Help:      "Control datagrams written to the network, retries included.",
		},
	)
	repliesDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vrtctl",
			Subsystem: "session",
			Name:      "replies_discarded_total",
			Help:      "Datagrams received while awaiting an ACK that did not correlate.",
		},
		[]string{"reason"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vrtctl",
			Subsystem: "controller",
			Name:      "commands_total",
			Help:      "Commands sent, by outcome.",
		},
		[]string{"outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vrtctl",
			Subsystem: "controller",
			Name:      "command_duration_seconds",
			Help:      "Command exchange duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	controlleePackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vrtctl",
			Subsystem: "controllee",
			Name:      "packets_total",
			Help:      "Packets handled by the endpoint simulator.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			datagramsSent,
			repliesDiscarded,
			commands,
			commandDuration,
			controlleePackets,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordDatagramSent() {
	RegisterMetrics()
	datagramsSent.Inc()
}

func RecordReplyDiscarded(reason string) {
	RegisterMetrics()
	repliesDiscarded.WithLabelValues(reason).Inc()
}

// RecordCommand counts one command by outcome: accepted, rejected, or a fault kind.
func RecordCommand(outcome string, duration time.Duration) {
	RegisterMetrics()
	commands.WithLabelValues(outcome).Inc()
	commandDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordControlleePacket(result string) {
	RegisterMetrics()
	controlleePackets.WithLabelValues(result).Inc()
}
