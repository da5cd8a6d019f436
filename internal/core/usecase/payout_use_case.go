package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Nzyazin/tutorledger/internal/core/cache"
	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/core/metrics"
	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
)

type PayoutRequestInput struct {
	Amount         int64
	PaymentMethod  string
	PaymentDetails models.Metadata
}

type PayoutDecisionInput struct {
	AdminID  uuid.UUID
	Decision models.PayoutDecision
	Note     string
}

type PayoutUsecase interface {
	RequestPayout(ctx context.Context, teacherID uuid.UUID, in PayoutRequestInput) (*models.PayoutRequest, error)
	ProcessPayoutRequest(ctx context.Context, requestID uuid.UUID, in PayoutDecisionInput) (*models.PayoutRequest, error)
	GetPayoutRequest(ctx context.Context, requestID uuid.UUID) (*models.PayoutRequest, error)
	ListPayoutRequests(ctx context.Context, filter models.PayoutFilter) (*models.PageResult[models.PayoutRequest], error)
}

type payoutUsecase struct {
	repo  repository.LedgerRepository
	cache cache.SummaryCache
	log   logger.Logger
	opts  Options
}

func NewPayoutUsecase(repo repository.LedgerRepository, summaries cache.SummaryCache, log logger.Logger, opts Options) PayoutUsecase {
	return &payoutUsecase{repo: repo, cache: summaries, log: log, opts: opts.withDefaults()}
}

// RequestPayout files a pending request. The balance check and the insert
// share one transaction; funds are not reserved until the request is approved.
func (uc *payoutUsecase) RequestPayout(ctx context.Context, teacherID uuid.UUID, in PayoutRequestInput) (*models.PayoutRequest, error) {
	uc.log.Info("Payout requested",
		logger.StringField("teacher_id", teacherID.String()),
		logger.Int64Field("amount", in.Amount),
		logger.StringField("method", in.PaymentMethod))

	if in.Amount <= 0 {
		metrics.LedgerRejections.WithLabelValues("invalid_amount").Inc()
		return nil, ErrInvalidAmount
	}

	var payout *models.PayoutRequest
	err := uc.repo.WithTx(ctx, repository.ReadWrite, func(st repository.Store) error {
		var (
			balance  int64
			currency = uc.opts.DefaultCurrency
		)
		wallet, err := st.GetWalletByTeacher(ctx, teacherID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// a teacher without a wallet has nothing to withdraw
		case err != nil:
			return err
		default:
			balance, currency = wallet.Balance, wallet.CurrencyCode
		}

		if in.Amount > balance {
			return &InsufficientFundsError{Balance: balance, Requested: in.Amount}
		}

		now := uc.opts.Now()
		payout = &models.PayoutRequest{
			ID:             uuid.New(),
			TeacherID:      teacherID,
			Amount:         in.Amount,
			CurrencyCode:   currency,
			Status:         models.PayoutPending,
			PaymentMethod:  in.PaymentMethod,
			PaymentDetails: in.PaymentDetails.Clone(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := st.InsertPayout(ctx, payout); err != nil {
			return fmt.Errorf("insert payout request: %w", err)
		}
		return nil
	})
	if err != nil {
		uc.logFailure("Payout request failed", teacherID, uuid.Nil, err)
		return nil, storeErr("request payout", err)
	}

	invalidateSummary(ctx, uc.cache, uc.log, teacherID)
	uc.log.Info("Payout request created",
		logger.StringField("payout_id", payout.ID.String()),
		logger.StringField("teacher_id", teacherID.String()))
	return payout, nil
}

// ProcessPayoutRequest approves or rejects a pending request. Approval
// re-validates the balance and debits the wallet in the same transaction
// that completes the request, so the request never ends up half processed.
func (uc *payoutUsecase) ProcessPayoutRequest(ctx context.Context, requestID uuid.UUID, in PayoutDecisionInput) (*models.PayoutRequest, error) {
	if !in.Decision.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, in.Decision)
	}

	var (
		payout *models.PayoutRequest
		entry  *models.WalletTransaction
	)
	err := uc.repo.WithTx(ctx, repository.ReadWrite, func(st repository.Store) error {
		// fn may run again after a transient failure
		entry = nil

		p, err := st.LockPayout(ctx, requestID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPayoutNotFound
		}
		if err != nil {
			return err
		}
		if p.Status.Terminal() {
			return fmt.Errorf("%w: request is %s", ErrAlreadyProcessed, p.Status)
		}

		now := uc.opts.Now()
		if in.Decision == models.PayoutApprove {
			wallet, err := lockExistingWallet(ctx, st, p.TeacherID)
			if err != nil {
				return err
			}
			ref := models.PayoutReference(p.ID)
			entry, err = post(ctx, st, wallet, models.TransactionDebit, Posting{
				Amount:      p.Amount,
				Description: fmt.Sprintf("Payout via %s", p.PaymentMethod),
				Reference:   &ref,
				Metadata:    models.Metadata{"payout_request_id": p.ID.String()},
			}, now)
			if err != nil {
				return err
			}
			p.Status = models.PayoutCompleted
			p.TransactionID = &entry.ID
		} else {
			p.Status = models.PayoutRejected
		}

		adminID := in.AdminID
		p.ProcessedAt = &now
		p.ProcessedBy = &adminID
		p.UpdatedAt = now
		if note := strings.TrimSpace(in.Note); note != "" {
			p.AdminNote = &note
		}
		if err := st.UpdatePayout(ctx, p); err != nil {
			return fmt.Errorf("update payout request: %w", err)
		}
		payout = p
		return nil
	})
	if err != nil {
		uc.logFailure("Payout processing failed", uuid.Nil, requestID, err)
		return nil, storeErr("process payout request", err)
	}

	if entry != nil {
		recordPosting(entry, payout.CurrencyCode)
	}
	metrics.PayoutDecisions.WithLabelValues(string(payout.Status)).Inc()
	invalidateSummary(ctx, uc.cache, uc.log, payout.TeacherID)
	uc.log.Info("Payout request processed",
		logger.StringField("payout_id", payout.ID.String()),
		logger.StringField("status", string(payout.Status)),
		logger.StringField("admin_id", in.AdminID.String()))
	return payout, nil
}

func (uc *payoutUsecase) GetPayoutRequest(ctx context.Context, requestID uuid.UUID) (*models.PayoutRequest, error) {
	var payout *models.PayoutRequest
	err := uc.repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		p, err := st.GetPayout(ctx, requestID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPayoutNotFound
		}
		payout = p
		return err
	})
	if err != nil {
		return nil, storeErr("get payout request", err)
	}
	return payout, nil
}

func (uc *payoutUsecase) ListPayoutRequests(ctx context.Context, filter models.PayoutFilter) (*models.PageResult[models.PayoutRequest], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: payout status %q", ErrInvalidStatus, filter.Status)
	}
	filter.Page = filter.Page.Normalize()

	result := &models.PageResult[models.PayoutRequest]{Page: filter.Page.Number, PerPage: filter.Page.Size}
	err := uc.repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		var err error
		result.Items, result.Total, err = st.ListPayouts(ctx, filter)
		return err
	})
	if err != nil {
		return nil, storeErr("list payout requests", err)
	}
	return result, nil
}

func (uc *payoutUsecase) logFailure(msg string, teacherID, requestID uuid.UUID, err error) {
	fields := []logger.Field{logger.ErrorField("error", err)}
	if teacherID != uuid.Nil {
		fields = append(fields, logger.StringField("teacher_id", teacherID.String()))
	}
	if requestID != uuid.Nil {
		fields = append(fields, logger.StringField("payout_id", requestID.String()))
	}

	if IsClientError(err) {
		metrics.LedgerRejections.WithLabelValues(rejectionReason(err)).Inc()
		uc.log.Warn(msg, fields...)
		return
	}
	uc.log.Error(msg, fields...)
}
