package usecase

import (
	"context"
	"errors"

	"github.com/Nzyazin/tutorledger/internal/core/cache"
	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
)

type SummaryUsecase interface {
	GetFinancialSummary(ctx context.Context, teacherID uuid.UUID) (*models.FinancialSummary, error)
}

type summaryUsecase struct {
	repo  repository.LedgerRepository
	cache cache.SummaryCache
	log   logger.Logger
	opts  Options
}

func NewSummaryUsecase(repo repository.LedgerRepository, summaries cache.SummaryCache, log logger.Logger, opts Options) SummaryUsecase {
	return &summaryUsecase{repo: repo, cache: summaries, log: log, opts: opts.withDefaults()}
}

// GetFinancialSummary aggregates wallet, earnings and payouts from a single
// read-only snapshot. Totals only count amounts in the wallet currency (the
// default currency when there is no wallet). Cache failures fall through to
// the store.
func (uc *summaryUsecase) GetFinancialSummary(ctx context.Context, teacherID uuid.UUID) (*models.FinancialSummary, error) {
	cached, ok, err := uc.cache.Get(ctx, teacherID)
	if err != nil {
		uc.log.Warn("Summary cache read failed",
			logger.StringField("teacher_id", teacherID.String()),
			logger.ErrorField("error", err))
	}
	if ok {
		return cached, nil
	}

	summary := &models.FinancialSummary{TeacherID: teacherID, CurrencyCode: uc.opts.DefaultCurrency}
	err = uc.repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		summary.WalletBalance = 0
		wallet, err := st.GetWalletByTeacher(ctx, teacherID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return err
		default:
			summary.WalletBalance = wallet.Balance
			summary.CurrencyCode = wallet.CurrencyCode
		}

		if summary.TotalEarned, err = st.SumEarned(ctx, teacherID, summary.CurrencyCode); err != nil {
			return err
		}
		if summary.PendingPayouts, err = st.SumPendingPayouts(ctx, teacherID, summary.CurrencyCode); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		uc.log.Error("Financial summary failed",
			logger.StringField("teacher_id", teacherID.String()),
			logger.ErrorField("error", err))
		return nil, storeErr("financial summary", err)
	}

	summary.AvailableForPayout = max(0, summary.WalletBalance-summary.PendingPayouts)

	if err := uc.cache.Set(ctx, summary); err != nil {
		uc.log.Warn("Summary cache write failed",
			logger.StringField("teacher_id", teacherID.String()),
			logger.ErrorField("error", err))
	}
	return summary, nil
}
