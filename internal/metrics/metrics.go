package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "labconsole"

// Metrics holds the notification client metrics.
type Metrics struct {
	// Snapshot fetches by outcome: ok, auth, malformed, error.
	Fetches *prometheus.CounterVec

	// Live frames by outcome: accepted, ignored, malformed.
	Frames *prometheus.CounterVec

	// Failed mutations by operation.
	MutationFailures *prometheus.CounterVec

	// Current unread count as seen by the store.
	Unread prometheus.Gauge

	// Current notification collection size.
	Notifications prometheus.Gauge

	// Live connection state (0 disconnected, 1 connecting, 2 connected).
	ConnectionState prometheus.Gauge

	// Dial attempts of the live channel.
	Dials prometheus.Counter
}

// New creates and registers all metrics on reg. Pass a fresh
// prometheus.NewRegistry() per store in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "fetches_total",
			Help:      "Snapshot fetches of the notification list by outcome",
		}, []string{"outcome"}),
		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "frames_total",
			Help:      "Inbound live channel frames by outcome",
		}, []string{"outcome"}),
		MutationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "mutation_failures_total",
			Help:      "Backend mutations that failed, by operation",
		}, []string{"op"}),
		Unread: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "unread",
			Help:      "Unread, unarchived notifications held by the store",
		}),
		Notifications: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "held",
			Help:      "Notifications held by the store",
		}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "connection_state",
			Help:      "Live channel state: 0 disconnected, 1 connecting, 2 connected",
		}),
		Dials: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "dials_total",
			Help:      "Live channel dial attempts",
		}),
	}
}
