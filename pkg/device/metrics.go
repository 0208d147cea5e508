package device

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qmi-protocol/qmi-go/pkg/transaction"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// Metrics holds the per-device Prometheus collectors. Every series carries
// a "device" label with the transport name.
type Metrics struct {
	transactions *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	indications  *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	unmatched    *prometheus.CounterVec
	clients      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qmi",
				Subsystem: "device",
				Name:      "transactions_total",
				Help:      "Resolved transactions by service and final state.",
			},
			[]string{"device", "service", "state"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "qmi",
				Subsystem: "device",
				Name:      "response_duration_seconds",
				Help:      "Time from request submission to response.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"device", "service"},
		),
		indications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qmi",
				Subsystem: "device",
				Name:      "indications_total",
				Help:      "Indications received by service.",
			},
			[]string{"device", "service"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qmi",
				Subsystem: "device",
				Name:      "indications_dropped_total",
				Help:      "Indications discarded because a subscriber queue was full.",
			},
			[]string{"device", "service"},
		),
		decodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qmi",
				Subsystem: "device",
				Name:      "decode_errors_total",
				Help:      "Inbound frames that could not be parsed.",
			},
			[]string{"device"},
		),
		unmatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qmi",
				Subsystem: "device",
				Name:      "unmatched_responses_total",
				Help:      "Responses with no pending transaction.",
			},
			[]string{"device", "service"},
		),
		clients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "qmi",
				Subsystem: "device",
				Name:      "clients",
				Help:      "Registered client ids.",
			},
			[]string{"device"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for i, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			for _, done := range m.collectors()[:i] {
				reg.Unregister(done)
			}
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.transactions, m.latency, m.indications, m.dropped,
		m.decodeErrors, m.unmatched, m.clients,
	}
}

// Unregister removes the collectors from reg. A device calls it once its
// port has closed so the registry can take a new device for the same name.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

// TransactionsTotal returns the counter for one service and final state.
func (m *Metrics) TransactionsTotal(device string, service wire.Service, state transaction.State) prometheus.Counter {
	return m.transactions.WithLabelValues(device, service.String(), state.String())
}

// IndicationsTotal returns the indication counter for one service.
func (m *Metrics) IndicationsTotal(device string, service wire.Service) prometheus.Counter {
	return m.indications.WithLabelValues(device, service.String())
}

// DroppedIndications returns the dropped indication counter for one service.
func (m *Metrics) DroppedIndications(device string, service wire.Service) prometheus.Counter {
	return m.dropped.WithLabelValues(device, service.String())
}

// DecodeErrors returns the decode error counter.
func (m *Metrics) DecodeErrors(device string) prometheus.Counter {
	return m.decodeErrors.WithLabelValues(device)
}

// UnmatchedResponses returns the unmatched response counter for one service.
func (m *Metrics) UnmatchedResponses(device string, service wire.Service) prometheus.Counter {
	return m.unmatched.WithLabelValues(device, service.String())
}

// Clients returns the client gauge.
func (m *Metrics) Clients(device string) prometheus.Gauge {
	return m.clients.WithLabelValues(device)
}

func (m *Metrics) observeResolved(device string, tx *transaction.Transaction, now time.Time) {
	svc := tx.Key().Service
	state := tx.State()
	m.TransactionsTotal(device, svc, state).Inc()
	if state == transaction.StateCompleted {
		m.latency.WithLabelValues(device, svc.String()).Observe(now.Sub(tx.Created()).Seconds())
	}
}
