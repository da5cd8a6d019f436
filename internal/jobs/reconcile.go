// Package jobs runs scheduled background checks over the ledger.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/core/metrics"
	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Mismatch describes a wallet whose stored balance disagrees with its entries.
type Mismatch struct {
	WalletID    uuid.UUID
	TeacherID   uuid.UUID
	Balance     int64
	SumOfDeltas int64
	LastBalance *int64
}

type Report struct {
	Checked    int
	Mismatches []Mismatch
}

// Reconciler verifies that every wallet balance equals the sum of its
// transaction deltas and the balance_after of its latest entry. It never writes.
type Reconciler struct {
	repo repository.LedgerRepository
	log  logger.Logger
}

func NewReconciler(repo repository.LedgerRepository, log logger.Logger) *Reconciler {
	return &Reconciler{repo: repo, log: log}
}

func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	err := r.repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		report.Checked, report.Mismatches = 0, nil

		wallets, err := st.ListWallets(ctx)
		if err != nil {
			return err
		}
		for _, w := range wallets {
			sum, last, err := st.SumTransactionDeltas(ctx, w.ID)
			if err != nil {
				return fmt.Errorf("wallet %s: %w", w.ID, err)
			}
			report.Checked++
			if !consistent(w, sum, last) {
				report.Mismatches = append(report.Mismatches, Mismatch{
					WalletID:    w.ID,
					TeacherID:   w.TeacherID,
					Balance:     w.Balance,
					SumOfDeltas: sum,
					LastBalance: last,
				})
			}
		}
		return nil
	})
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("reconcile ledger: %w", err)
	}

	metrics.ReconcileMismatches.Set(float64(len(report.Mismatches)))
	if len(report.Mismatches) > 0 {
		metrics.ReconcileRuns.WithLabelValues("mismatch").Inc()
	} else {
		metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	}
	return report, nil
}

func consistent(w models.Wallet, sum int64, last *int64) bool {
	if w.Balance != sum {
		return false
	}
	if last == nil {
		return w.Balance == 0
	}
	return *last == w.Balance
}

// Schedule registers the reconciler on c. Each run gets its own timeout so a
// stuck store cannot pile up overlapping runs.
func Schedule(c *cron.Cron, spec string, r *Reconciler, timeout time.Duration) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		r.runAndLog(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule reconciliation %q: %w", spec, err)
	}
	return id, nil
}

func (r *Reconciler) runAndLog(ctx context.Context) {
	start := time.Now()
	report, err := r.Run(ctx)
	if err != nil {
		r.log.Error("Ledger reconciliation failed", logger.ErrorField("error", err))
		return
	}

	for _, m := range report.Mismatches {
		fields := []logger.Field{
			logger.StringField("wallet_id", m.WalletID.String()),
			logger.StringField("teacher_id", m.TeacherID.String()),
			logger.Int64Field("balance", m.Balance),
			logger.Int64Field("sum_of_deltas", m.SumOfDeltas),
		}
		if m.LastBalance != nil {
			fields = append(fields, logger.Int64Field("last_balance_after", *m.LastBalance))
		}
		r.log.Error("Wallet balance does not match its transactions", fields...)
	}
	r.log.Info("Ledger reconciliation finished",
		logger.IntField("wallets", report.Checked),
		logger.IntField("mismatches", len(report.Mismatches)),
		logger.StringField("took", time.Since(start).String()))
}
