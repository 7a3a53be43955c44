package server

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "lanchat"

// metrics holds the Prometheus collectors of one Server.
type metrics struct {
	sessionsActive   prometheus.Gauge
	sessionsAccepted *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	discoveryQueries *prometheus.CounterVec
}

// newMetrics registers the collectors on reg. Servers sharing a name on one
// registry share their collectors.
func newMetrics(reg prometheus.Registerer, serverName string) (*metrics, error) {
	labels := prometheus.Labels{"server": serverName}
	m := &metrics{}
	var err error

	if m.sessionsActive, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "sessions_active",
		Help:        "Number of sessions whose receive loop is running",
		ConstLabels: labels,
	})); err != nil {
		return nil, err
	}
	if m.sessionsAccepted, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "sessions_accepted_total",
		Help:        "Total number of accepted session connections by transport",
		ConstLabels: labels,
	}, []string{"transport"})); err != nil {
		return nil, err
	}
	if m.messagesReceived, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "messages_received_total",
		Help:        "Total number of session lines received by kind",
		ConstLabels: labels,
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if m.messagesSent, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "messages_sent_total",
		Help:        "Total number of payload lines written to sessions by result",
		ConstLabels: labels,
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.discoveryQueries, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "discovery_queries_total",
		Help:        "Total number of discovery datagrams by result",
		ConstLabels: labels,
	}, []string{"result"})); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, or returns the identical collector already there.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, errors.Wrap(err, "register metrics collector failed")
}
