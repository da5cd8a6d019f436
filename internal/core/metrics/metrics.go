// Package metrics holds the ledger's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerPostings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Wallet transactions appended, by type",
	}, []string{"type"})

	LedgerPostedMinorUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_posted_minor_units_total",
		Help: "Sum of posted amounts in minor units, by type and currency",
	}, []string{"type", "currency"})

	LedgerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rejections_total",
		Help: "Ledger operations rejected before commit, by reason",
	}, []string{"reason"})

	EarningsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "earnings_recorded_total",
		Help: "Session earnings handled, by outcome (created or duplicate)",
	}, []string{"outcome"})

	PayoutDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_decisions_total",
		Help: "Processed payout requests, by resulting status",
	}, []string{"status"})

	TxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_tx_retries_total",
		Help: "Transactions re-run after a serialization failure, deadlock or lock timeout",
	})

	ReconcileMismatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_reconcile_mismatched_wallets",
		Help: "Wallets whose balance disagreed with their transactions in the last reconciliation run",
	})

	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_reconcile_runs_total",
		Help: "Reconciliation runs, by result",
	}, []string{"result"})
)
