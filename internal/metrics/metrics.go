// Package metrics exposes Prometheus collectors for the server. A nil
// *Metrics is valid everywhere a *Metrics is accepted: every method is a
// no-op on a nil receiver, so metrics are opt-in without littering every
// call site with nil checks.
//
// Grounded on the teacher's pack-mate oriys-nova's internal/metrics
// package, which wraps the same client_golang collectors behind a
// nil-guarded singleton; this version is an instance rather than a
// package global so a host process can run more than one server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics wraps the Prometheus collectors the server updates while
// accepting connections, negotiating options, and servicing commands.
type Metrics struct {
	registry *prometheus.Registry

	connectionsAccepted prometheus.Counter
	handshakeFailures   prometheus.Counter
	optionReplies       *prometheus.CounterVec
	commandsTotal       *prometheus.CounterVec
	commandErrors       *prometheus.CounterVec
}

// New builds a Metrics instance registered against a fresh Prometheus
// registry. The host program exposes that registry (see Registry)
// through promhttp.Handler or similar; serving metrics over HTTP is not
// part of this package's surface.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total TCP connections accepted by the acceptor.",
		}),

		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Total connections rejected during the handshake phase.",
		}),

		optionReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "option_replies_total",
			Help:      "Option replies sent, by option code and reply code.",
		}, []string{"opt", "reply"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Transmission-phase commands processed, by command type.",
		}, []string{"cmd"}),

		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_errors_total",
			Help:      "Transmission-phase commands that failed, by command type and NBD errno.",
		}, []string{"cmd", "errno"}),
	}

	registry.MustRegister(
		m.connectionsAccepted,
		m.handshakeFailures,
		m.optionReplies,
		m.commandsTotal,
		m.commandErrors,
	)

	return m
}

// Registry returns the Prometheus registry metrics were registered
// against, for wiring into an HTTP scrape endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

func (m *Metrics) HandshakeFailed() {
	if m == nil {
		return
	}
	m.handshakeFailures.Inc()
}

func (m *Metrics) OptionReplied(opt, reply string) {
	if m == nil {
		return
	}
	m.optionReplies.WithLabelValues(opt, reply).Inc()
}

func (m *Metrics) CommandProcessed(cmd string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(cmd).Inc()
}

func (m *Metrics) CommandFailed(cmd, errno string) {
	if m == nil {
		return
	}
	m.commandErrors.WithLabelValues(cmd, errno).Inc()
}
