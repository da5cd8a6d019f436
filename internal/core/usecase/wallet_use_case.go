package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nzyazin/tutorledger/internal/core/cache"
	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/core/metrics"
	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
)

type WalletUsecase interface {
	GetOrCreateWallet(ctx context.Context, teacherID uuid.UUID, currencyCode string) (*models.Wallet, error)
	Credit(ctx context.Context, teacherID uuid.UUID, p Posting) (*models.WalletTransaction, error)
	Debit(ctx context.Context, teacherID uuid.UUID, p Posting) (*models.WalletTransaction, error)
	GetWallet(ctx context.Context, teacherID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, teacherID uuid.UUID, filter models.TransactionFilter) (*models.PageResult[models.WalletTransaction], error)
	GetCurrency(ctx context.Context, code string) (*models.Currency, error)
}

type walletUsecase struct {
	repo  repository.LedgerRepository
	cache cache.SummaryCache
	log   logger.Logger
	opts  Options
}

func NewWalletUsecase(repo repository.LedgerRepository, summaries cache.SummaryCache, log logger.Logger, opts Options) WalletUsecase {
	return &walletUsecase{repo: repo, cache: summaries, log: log, opts: opts.withDefaults()}
}

func (uc *walletUsecase) GetOrCreateWallet(ctx context.Context, teacherID uuid.UUID, currencyCode string) (*models.Wallet, error) {
	if currencyCode == "" {
		currencyCode = uc.opts.DefaultCurrency
	}

	var wallet *models.Wallet
	err := uc.repo.WithTx(ctx, repository.ReadWrite, func(st repository.Store) error {
		w, err := acquireWallet(ctx, st, teacherID, currencyCode, uc.opts.Now())
		if err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		uc.log.Error("Wallet acquisition failed",
			logger.StringField("teacher_id", teacherID.String()),
			logger.StringField("currency", currencyCode),
			logger.ErrorField("error", err))
		return nil, storeErr("get or create wallet", err)
	}
	return wallet, nil
}

// Credit adds funds, creating the wallet on first use.
func (uc *walletUsecase) Credit(ctx context.Context, teacherID uuid.UUID, p Posting) (*models.WalletTransaction, error) {
	uc.logStart(models.TransactionCredit, teacherID, p)

	if p.Amount <= 0 {
		return nil, uc.reject(models.TransactionCredit, teacherID, p, ErrInvalidAmount)
	}

	var (
		entry    *models.WalletTransaction
		currency string
	)
	err := uc.repo.WithTx(ctx, repository.ReadWrite, func(st repository.Store) error {
		now := uc.opts.Now()
		wallet, err := acquireWallet(ctx, st, teacherID, uc.opts.DefaultCurrency, now)
		if err != nil {
			return err
		}
		entry, err = post(ctx, st, wallet, models.TransactionCredit, p, now)
		currency = wallet.CurrencyCode
		return err
	})
	if err != nil {
		return nil, uc.reject(models.TransactionCredit, teacherID, p, storeErr("credit wallet", err))
	}

	uc.committed(ctx, teacherID, entry, currency)
	return entry, nil
}

// Debit withdraws funds. The balance never goes below zero.
func (uc *walletUsecase) Debit(ctx context.Context, teacherID uuid.UUID, p Posting) (*models.WalletTransaction, error) {
	uc.logStart(models.TransactionDebit, teacherID, p)

	if p.Amount <= 0 {
		return nil, uc.reject(models.TransactionDebit, teacherID, p, ErrInvalidAmount)
	}

	var (
		entry    *models.WalletTransaction
		currency string
	)
	err := uc.repo.WithTx(ctx, repository.ReadWrite, func(st repository.Store) error {
		wallet, err := lockExistingWallet(ctx, st, teacherID)
		if err != nil {
			return err
		}
		entry, err = post(ctx, st, wallet, models.TransactionDebit, p, uc.opts.Now())
		currency = wallet.CurrencyCode
		return err
	})
	if err != nil {
		return nil, uc.reject(models.TransactionDebit, teacherID, p, storeErr("debit wallet", err))
	}

	uc.committed(ctx, teacherID, entry, currency)
	return entry, nil
}

func (uc *walletUsecase) GetWallet(ctx context.Context, teacherID uuid.UUID) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := uc.repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		w, err := st.GetWalletByTeacher(ctx, teacherID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrWalletNotFound
		}
		wallet = w
		return err
	})
	if err != nil {
		return nil, storeErr("get wallet", err)
	}
	return wallet, nil
}

func (uc *walletUsecase) ListTransactions(ctx context.Context, teacherID uuid.UUID, filter models.TransactionFilter) (*models.PageResult[models.WalletTransaction], error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: transaction type %q", ErrInvalidStatus, filter.Type)
	}
	filter.Page = filter.Page.Normalize()

	result := &models.PageResult[models.WalletTransaction]{
		Items:   []models.WalletTransaction{},
		Page:    filter.Page.Number,
		PerPage: filter.Page.Size,
	}
	err := uc.repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		wallet, err := st.GetWalletByTeacher(ctx, teacherID)
		if errors.Is(err, repository.ErrNotFound) {
			// no wallet yet means no history
			return nil
		}
		if err != nil {
			return err
		}
		result.Items, result.Total, err = st.ListTransactions(ctx, wallet.ID, filter)
		return err
	})
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	return result, nil
}

func (uc *walletUsecase) GetCurrency(ctx context.Context, code string) (*models.Currency, error) {
	var currency *models.Currency
	err := uc.repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		c, err := getCurrency(ctx, st, code)
		currency = c
		return err
	})
	if err != nil {
		return nil, storeErr("get currency", err)
	}
	return currency, nil
}

func (uc *walletUsecase) logStart(kind models.TransactionType, teacherID uuid.UUID, p Posting) {
	uc.log.Info("Starting wallet operation",
		logger.StringField("teacher_id", teacherID.String()),
		logger.StringField("type", string(kind)),
		logger.Int64Field("amount", p.Amount))
}

func (uc *walletUsecase) reject(kind models.TransactionType, teacherID uuid.UUID, p Posting, err error) error {
	var insufficient *InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		metrics.LedgerRejections.WithLabelValues("insufficient_funds").Inc()
		uc.log.Warn("Insufficient funds",
			logger.StringField("teacher_id", teacherID.String()),
			logger.Int64Field("balance", insufficient.Balance),
			logger.Int64Field("requested", insufficient.Requested))
	case IsClientError(err):
		metrics.LedgerRejections.WithLabelValues(rejectionReason(err)).Inc()
		uc.log.Warn("Wallet operation rejected",
			logger.StringField("teacher_id", teacherID.String()),
			logger.StringField("type", string(kind)),
			logger.Int64Field("amount", p.Amount),
			logger.ErrorField("error", err))
	default:
		uc.log.Error("Wallet operation failed",
			logger.StringField("teacher_id", teacherID.String()),
			logger.StringField("type", string(kind)),
			logger.Int64Field("amount", p.Amount),
			logger.ErrorField("error", err))
	}
	return err
}

func (uc *walletUsecase) committed(ctx context.Context, teacherID uuid.UUID, entry *models.WalletTransaction, currency string) {
	recordPosting(entry, currency)
	invalidateSummary(ctx, uc.cache, uc.log, teacherID)
	uc.log.Info("Wallet operation successful",
		logger.StringField("teacher_id", teacherID.String()),
		logger.StringField("transaction_id", entry.ID.String()),
		logger.StringField("type", string(entry.Type)),
		logger.Int64Field("amount", entry.Amount),
		logger.Int64Field("balance_after", entry.BalanceAfter))
}

func recordPosting(entry *models.WalletTransaction, currency string) {
	metrics.LedgerPostings.WithLabelValues(string(entry.Type)).Inc()
	metrics.LedgerPostedMinorUnits.WithLabelValues(string(entry.Type), currency).Add(float64(entry.Amount))
}

// invalidateSummary drops the cached summary after a commit. A failure only
// leaves a stale entry until its TTL expires, so it is logged and ignored.
func invalidateSummary(ctx context.Context, summaries cache.SummaryCache, log logger.Logger, teacherID uuid.UUID) {
	if err := summaries.Invalidate(ctx, teacherID); err != nil {
		log.Warn("Summary cache invalidation failed",
			logger.StringField("teacher_id", teacherID.String()),
			logger.ErrorField("error", err))
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrWalletNotFound):
		return "wallet_not_found"
	case errors.Is(err, ErrCurrencyNotFound):
		return "currency_not_found"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	}
	return "other"
}
