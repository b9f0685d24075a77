package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ledgerMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	airdrops   *prometheus.CounterVec
}

func newLedgerMetrics(promRegistry prometheus.Registerer) *ledgerMetrics {
	if promRegistry == nil {
		return nil
	}
	promautoFactory := promauto.With(promRegistry)
	return &ledgerMetrics{
		operations: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "dropop_ledger_operations_total",
			Help: "committed state-mutating ledger calls",
		}, []string{"operation"}),
		failures: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "dropop_ledger_failures_total",
			Help: "aborted state-mutating ledger calls by reason",
		}, []string{"operation", "reason"}),
		airdrops: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "dropop_ledger_airdrops_created_total",
			Help: "airdrops created by mode",
		}, []string{"mode"}),
	}
}

func (m *ledgerMetrics) success(operation string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation).Inc()
}

func (m *ledgerMetrics) failure(operation string, err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation, errorReason(err)).Inc()
}

func (m *ledgerMetrics) created(mode string) {
	if m == nil {
		return
	}
	m.airdrops.WithLabelValues(mode).Inc()
}
