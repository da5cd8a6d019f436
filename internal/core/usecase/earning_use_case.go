package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/cache"
	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/core/metrics"
	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
)

type EarningUsecase interface {
	// RecordSessionEarning is idempotent per session. created is false when
	// the session had already been recorded; the stored earning is returned.
	RecordSessionEarning(ctx context.Context, session models.CompletedSession) (earning *models.Earning, created bool, err error)
	MarkEarningPaid(ctx context.Context, earningID uuid.UUID, paidAt time.Time) (*models.Earning, error)
	CancelEarning(ctx context.Context, earningID uuid.UUID) (*models.Earning, error)
	ListEarnings(ctx context.Context, teacherID uuid.UUID, filter models.EarningFilter) (*models.PageResult[models.Earning], error)
}

type earningUsecase struct {
	repo  repository.LedgerRepository
	cache cache.SummaryCache
	log   logger.Logger
	opts  Options
}

func NewEarningUsecase(repo repository.LedgerRepository, summaries cache.SummaryCache, log logger.Logger, opts Options) EarningUsecase {
	return &earningUsecase{repo: repo, cache: summaries, log: log, opts: opts.withDefaults()}
}

func (uc *earningUsecase) RecordSessionEarning(ctx context.Context, session models.CompletedSession) (*models.Earning, bool, error) {
	if session.Status != models.SessionCompleted {
		uc.log.Warn("Earning for unfinished session refused",
			logger.StringField("session_id", session.ID.String()),
			logger.StringField("status", string(session.Status)))
		return nil, false, ErrSessionNotCompleted
	}
	if session.Amount <= 0 {
		return nil, false, ErrInvalidAmount
	}
	if session.CurrencyCode == "" {
		session.CurrencyCode = uc.opts.DefaultCurrency
	}

	var (
		earning *models.Earning
		created bool
	)
	err := uc.repo.WithTx(ctx, repository.ReadWrite, func(st repository.Store) error {
		if _, err := getCurrency(ctx, st, session.CurrencyCode); err != nil {
			return err
		}

		now := uc.opts.Now()
		candidate := &models.Earning{
			ID:           uuid.New(),
			TeacherID:    session.TeacherID,
			SessionID:    session.ID,
			StudentID:    session.StudentID,
			Amount:       session.Amount,
			CurrencyCode: session.CurrencyCode,
			Status:       models.EarningPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		inserted, err := st.InsertEarningIfAbsent(ctx, candidate)
		if err != nil {
			return fmt.Errorf("insert earning: %w", err)
		}
		if inserted {
			earning, created = candidate, true
			return nil
		}

		existing, err := st.GetEarningBySession(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("load recorded earning: %w", err)
		}
		earning, created = existing, false
		return nil
	})
	if err != nil {
		uc.log.Error("Recording earning failed",
			logger.StringField("session_id", session.ID.String()),
			logger.ErrorField("error", err))
		return nil, false, storeErr("record session earning", err)
	}

	if !created {
		metrics.EarningsRecorded.WithLabelValues("duplicate").Inc()
		uc.log.Info("Earning already recorded for session",
			logger.StringField("session_id", session.ID.String()),
			logger.StringField("earning_id", earning.ID.String()),
			logger.ErrorField("reason", ErrDuplicateEarning))
		return earning, false, nil
	}

	metrics.EarningsRecorded.WithLabelValues("created").Inc()
	invalidateSummary(ctx, uc.cache, uc.log, earning.TeacherID)
	uc.log.Info("Earning recorded",
		logger.StringField("earning_id", earning.ID.String()),
		logger.StringField("session_id", session.ID.String()),
		logger.StringField("teacher_id", earning.TeacherID.String()),
		logger.Int64Field("amount", earning.Amount))
	return earning, true, nil
}

func (uc *earningUsecase) MarkEarningPaid(ctx context.Context, earningID uuid.UUID, paidAt time.Time) (*models.Earning, error) {
	return uc.transition(ctx, earningID, models.EarningPaid, paidAt)
}

func (uc *earningUsecase) CancelEarning(ctx context.Context, earningID uuid.UUID) (*models.Earning, error) {
	return uc.transition(ctx, earningID, models.EarningCancelled, time.Time{})
}

func (uc *earningUsecase) transition(ctx context.Context, earningID uuid.UUID, next models.EarningStatus, paidAt time.Time) (*models.Earning, error) {
	var earning *models.Earning
	err := uc.repo.WithTx(ctx, repository.ReadWrite, func(st repository.Store) error {
		e, err := st.LockEarning(ctx, earningID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEarningNotFound
		}
		if err != nil {
			return err
		}
		if !e.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, e.Status, next)
		}

		now := uc.opts.Now()
		e.Status = next
		e.UpdatedAt = now
		if next == models.EarningPaid {
			if paidAt.IsZero() {
				paidAt = now
			}
			e.PaidAt = &paidAt
		}
		if err := st.UpdateEarning(ctx, e); err != nil {
			return fmt.Errorf("update earning: %w", err)
		}
		earning = e
		return nil
	})
	if err != nil {
		uc.log.Warn("Earning status change failed",
			logger.StringField("earning_id", earningID.String()),
			logger.StringField("status", string(next)),
			logger.ErrorField("error", err))
		return nil, storeErr("update earning status", err)
	}

	invalidateSummary(ctx, uc.cache, uc.log, earning.TeacherID)
	uc.log.Info("Earning status changed",
		logger.StringField("earning_id", earningID.String()),
		logger.StringField("status", string(next)))
	return earning, nil
}

func (uc *earningUsecase) ListEarnings(ctx context.Context, teacherID uuid.UUID, filter models.EarningFilter) (*models.PageResult[models.Earning], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: earning status %q", ErrInvalidStatus, filter.Status)
	}
	filter.Page = filter.Page.Normalize()

	result := &models.PageResult[models.Earning]{Page: filter.Page.Number, PerPage: filter.Page.Size}
	err := uc.repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		var err error
		result.Items, result.Total, err = st.ListEarnings(ctx, teacherID, filter)
		return err
	})
	if err != nil {
		return nil, storeErr("list earnings", err)
	}
	return result, nil
}
