// Package metrics exposes Prometheus collectors for the replay service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stealth-startup/openexchange/internal/ledger"
)

const namespace = "openexchange"

// Metrics wraps the collectors tracking replay progress. A nil *Metrics
// records nothing.
type Metrics struct {
	blocks       prometheus.Counter
	rollbacks    prometheus.Counter
	requests     *prometheus.CounterVec
	height       prometheus.Gauge
	batches      prometheus.Counter
	paid         prometheus.Counter
	sendFailures prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "blocks_processed_total",
			Help:      "Blocks applied to the chained state.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "rollbacks_total",
			Help:      "Chained states discarded after a chain mismatch.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "requests_total",
			Help:      "Decoded requests segmented by kind and status.",
		}, []string{"kind", "status"}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "processed_height",
			Help:      "Height of the latest chained state.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "batches_sent_total",
			Help:      "Payment transactions broadcast.",
		}),
		paid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "satoshis_paid_total",
			Help:      "Satoshis paid out to users.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "send_failures_total",
			Help:      "Payment transactions the wallet refused.",
		}),
	}
	for _, c := range []prometheus.Collector{m.blocks, m.rollbacks, m.requests, m.height, m.batches, m.paid, m.sendFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// BlockProcessed records a block applied at height with its requests.
func (m *Metrics) BlockProcessed(height int64, requests []ledger.Request) {
	if m == nil {
		return
	}
	m.blocks.Inc()
	m.height.Set(float64(height))
	for _, req := range requests {
		h := req.Head()
		m.requests.WithLabelValues(string(h.Kind), string(h.Status)).Inc()
	}
}

// RolledBack records a discarded state, leaving height as the new tip.
func (m *Metrics) RolledBack(height int64) {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
	m.height.Set(float64(height))
}

// BatchSent implements settlement.Recorder.
func (m *Metrics) BatchSent(recipients int, amount int64) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.paid.Add(float64(amount))
}

// SendFailed implements settlement.Recorder.
func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}
