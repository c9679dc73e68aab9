package smtpd

import "github.com/prometheus/client_golang/prometheus"

// daemonMetrics mirrors the shape of the teacher's ActivityMonitorMetrics:
// a handful of labelled gauges/counters refreshed from live daemon state,
// registered once per Daemon instance so that running several daemons in
// one process does not collide on metric names.
type daemonMetrics struct {
	connectionsAccepted prometheus.Counter
	connectionsActive   prometheus.Gauge
	commandsProcessed   *prometheus.CounterVec
	bytesReceived       prometheus.Counter
	rateLimitRejections prometheus.Counter
}

// newDaemonMetrics builds and registers a fresh set of collectors labelled
// with the daemon's listen address, so that prometheus.DefaultRegisterer
// does not reject a second Daemon started in the same process.
func newDaemonMetrics(registerer prometheus.Registerer, label string) *daemonMetrics {
	constLabels := prometheus.Labels{"listener": label}
	m := &daemonMetrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "smtpd",
			Name:        "connections_accepted_total",
			Help:        "Total number of TCP connections accepted.",
			ConstLabels: constLabels,
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "smtpd",
			Name:        "connections_active",
			Help:        "Number of SMTP connections currently being served.",
			ConstLabels: constLabels,
		}),
		commandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "smtpd",
			Name:        "commands_processed_total",
			Help:        "Total number of SMTP commands processed, by verb.",
			ConstLabels: constLabels,
		}, []string{"verb"}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "smtpd",
			Name:        "bytes_received_total",
			Help:        "Total number of message body bytes received via BDAT.",
			ConstLabels: constLabels,
		}),
		rateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "smtpd",
			Name:        "rate_limit_rejections_total",
			Help:        "Total number of connections rejected for exceeding the per-IP rate limit.",
			ConstLabels: constLabels,
		}),
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	// Registration errors are ignored: a daemon restarted with the same
	// listen address within one process (as tests do) re-registers
	// collectors carrying identical ConstLabels, which prometheus rejects
	// as AlreadyRegisteredError but which is harmless here.
	for _, c := range []prometheus.Collector{
		m.connectionsAccepted,
		m.connectionsActive,
		m.commandsProcessed,
		m.bytesReceived,
		m.rateLimitRejections,
	} {
		_ = registerer.Register(c)
	}
	return m
}
