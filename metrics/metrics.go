// Package metrics exports circulation counters and gauges in the Prometheus
// text format, for node_exporter's textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"library-circulation/library"
)

// Options configures the collectors.
type Options struct {
	Namespace string
	// Textfile is rewritten after every committed operation. Empty disables it.
	Textfile string
	Logger   *zap.Logger
}

// Metrics is a library.Observer backed by a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Events               *prometheus.CounterVec
	Copies               *prometheus.GaugeVec
	Users                prometheus.Gauge
	SuspendedUsers       prometheus.Gauge
	OpenLoans            prometheus.Gauge
	OverdueLoans         prometheus.Gauge
	Reservations         *prometheus.GaugeVec
	OutstandingPenalties prometheus.Gauge

	textfile string
	log      *zap.Logger
}

// New constructs and registers the collectors.
func New(opts Options) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "library"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed circulation events partitioned by kind.",
		}, []string{"kind"}),
		Copies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "copies",
			Help:      "Copies partitioned by status.",
		}, []string{"status"}),
		Reservations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_reservations",
			Help:      "Active reservations partitioned by status.",
		}, []string{"status"}),
		Users:                gauge("users", "Registered members."),
		SuspendedUsers:       gauge("suspended_users", "Members currently suspended."),
		OpenLoans:            gauge("open_loans", "Loans not yet returned."),
		OverdueLoans:         gauge("overdue_loans", "Open loans past their due date."),
		OutstandingPenalties: gauge("outstanding_penalties", "Sum of all member penalty ledgers."),
		textfile:             opts.Textfile,
		log:                  log,
	}

	for _, c := range []prometheus.Collector{
		m.Events, m.Copies, m.Reservations, m.Users, m.SuspendedUsers,
		m.OpenLoans, m.OverdueLoans, m.OutstandingPenalties,
	} {
		if err := m.Registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Observe counts the events, refreshes the gauges from stats and rewrites the
// textfile.
func (m *Metrics) Observe(events []library.Event, stats library.Stats) {
	for _, e := range events {
		m.Events.WithLabelValues(e.Kind).Inc()
	}
	m.Set(stats)
	if err := m.WriteTextfile(); err != nil {
		m.log.Error("metrics textfile write failed", zap.String("path", m.textfile), zap.Error(err))
	}
}

// Set refreshes the gauges.
func (m *Metrics) Set(stats library.Stats) {
	for _, status := range []library.CopyStatus{
		library.CopyAvailable, library.CopyLoaned, library.CopyReserved, library.CopyWithdrawn,
	} {
		m.Copies.WithLabelValues(string(status)).Set(float64(stats.CopiesByStatus[status]))
	}
	m.Reservations.WithLabelValues(string(library.ReservationWaiting)).Set(float64(stats.WaitingReservations))
	m.Reservations.WithLabelValues(string(library.ReservationNotified)).Set(float64(stats.NotifiedReservations))
	m.Users.Set(float64(stats.Users))
	m.SuspendedUsers.Set(float64(stats.SuspendedUsers))
	m.OpenLoans.Set(float64(stats.OpenLoans))
	m.OverdueLoans.Set(float64(stats.OverdueLoans))
	m.OutstandingPenalties.Set(stats.OutstandingPenalties.InexactFloat64())
}

// WriteTextfile writes the registry to the configured textfile, if any.
func (m *Metrics) WriteTextfile() error {
	if m.textfile == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.textfile, m.Registry)
}
