package postgres

import (
	"context"
	"fmt"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
)

const earningColumns = `id, teacher_id, session_id, student_id, amount, currency_code,
	status, paid_at, created_at, updated_at`

func (s *txStore) InsertEarningIfAbsent(ctx context.Context, e *models.Earning) (bool, error) {
	const query = `INSERT INTO earnings (` + earningColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO NOTHING`

	res, err := s.tx.ExecContext(ctx, query,
		e.ID, e.TeacherID, e.SessionID, e.StudentID, e.Amount, e.CurrencyCode,
		string(e.Status), e.PaidAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert earning: %w", classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert earning: %w", err)
	}
	return n == 1, nil
}

func (s *txStore) GetEarningBySession(ctx context.Context, sessionID uuid.UUID) (*models.Earning, error) {
	var e models.Earning
	query := `SELECT ` + earningColumns + ` FROM earnings WHERE session_id = $1`
	if err := s.tx.GetContext(ctx, &e, query, sessionID); err != nil {
		return nil, fmt.Errorf("get earning of session %s: %w", sessionID, classify(err))
	}
	return &e, nil
}

func (s *txStore) LockEarning(ctx context.Context, id uuid.UUID) (*models.Earning, error) {
	var e models.Earning
	query := `SELECT ` + earningColumns + ` FROM earnings WHERE id = $1 FOR UPDATE`
	if err := s.tx.GetContext(ctx, &e, query, id); err != nil {
		return nil, fmt.Errorf("lock earning %s: %w", id, classify(err))
	}
	return &e, nil
}

func (s *txStore) UpdateEarning(ctx context.Context, e *models.Earning) error {
	const query = `UPDATE earnings SET status = $1, paid_at = $2, updated_at = $3 WHERE id = $4`

	res, err := s.tx.ExecContext(ctx, query, string(e.Status), e.PaidAt, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("update earning: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update earning: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update earning %s: %w", e.ID, repository.ErrNotFound)
	}
	return nil
}

func (s *txStore) ListEarnings(ctx context.Context, teacherID uuid.UUID, f models.EarningFilter) ([]models.Earning, int, error) {
	var w whereClause
	w.add("teacher_id = $%d", teacherID)
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}
	w.addRange("created_at", f.Range)

	var total int
	if err := s.tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM earnings`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count earnings: %w", classify(err))
	}

	limit, args := w.limitOffset(f.Page.Normalize())
	query := `SELECT ` + earningColumns + ` FROM earnings` + w.String() +
		` ORDER BY created_at DESC, id` + limit

	earnings := []models.Earning{}
	if err := s.tx.SelectContext(ctx, &earnings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list earnings: %w", classify(err))
	}
	return earnings, total, nil
}

func (s *txStore) SumEarned(ctx context.Context, teacherID uuid.UUID, currency string) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM earnings
		WHERE teacher_id = $1 AND currency_code = $2 AND status <> 'cancelled'`

	var sum int64
	if err := s.tx.GetContext(ctx, &sum, query, teacherID, currency); err != nil {
		return 0, fmt.Errorf("sum earnings: %w", classify(err))
	}
	return sum, nil
}
