package postgres

import (
	"context"
	"fmt"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
)

const payoutColumns = `id, teacher_id, amount, currency_code, status, payment_method,
	payment_details, admin_note, processed_at, processed_by, transaction_id, created_at, updated_at`

func (s *txStore) InsertPayout(ctx context.Context, p *models.PayoutRequest) error {
	const query = `INSERT INTO payout_requests (` + payoutColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.tx.ExecContext(ctx, query,
		p.ID,
		p.TeacherID,
		p.Amount,
		p.CurrencyCode,
		string(p.Status),
		p.PaymentMethod,
		p.PaymentDetails,
		p.AdminNote,
		p.ProcessedAt,
		p.ProcessedBy,
		p.TransactionID,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create payout request: %w", classify(err))
	}
	return nil
}

func (s *txStore) GetPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	query := `SELECT ` + payoutColumns + ` FROM payout_requests WHERE id = $1`
	if err := s.tx.GetContext(ctx, &p, query, id); err != nil {
		return nil, fmt.Errorf("get payout request %s: %w", id, classify(err))
	}
	return &p, nil
}

func (s *txStore) LockPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	query := `SELECT ` + payoutColumns + ` FROM payout_requests WHERE id = $1 FOR UPDATE`
	if err := s.tx.GetContext(ctx, &p, query, id); err != nil {
		return nil, fmt.Errorf("lock payout request %s: %w", id, classify(err))
	}
	return &p, nil
}

func (s *txStore) UpdatePayout(ctx context.Context, p *models.PayoutRequest) error {
	const query = `UPDATE payout_requests
		SET status = $1, admin_note = $2, processed_at = $3, processed_by = $4,
			transaction_id = $5, updated_at = $6
		WHERE id = $7`

	res, err := s.tx.ExecContext(ctx, query,
		string(p.Status), p.AdminNote, p.ProcessedAt, p.ProcessedBy, p.TransactionID, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update payout request: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payout request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update payout request %s: %w", p.ID, repository.ErrNotFound)
	}
	return nil
}

func (s *txStore) ListPayouts(ctx context.Context, f models.PayoutFilter) ([]models.PayoutRequest, int, error) {
	var w whereClause
	if f.TeacherID != nil {
		w.add("teacher_id = $%d", *f.TeacherID)
	}
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}
	w.addRange("created_at", f.Range)

	var total int
	if err := s.tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM payout_requests`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count payout requests: %w", classify(err))
	}

	limit, args := w.limitOffset(f.Page.Normalize())
	query := `SELECT ` + payoutColumns + ` FROM payout_requests` + w.String() +
		` ORDER BY created_at DESC, id` + limit

	payouts := []models.PayoutRequest{}
	if err := s.tx.SelectContext(ctx, &payouts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payout requests: %w", classify(err))
	}
	return payouts, total, nil
}

func (s *txStore) SumPendingPayouts(ctx context.Context, teacherID uuid.UUID, currency string) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM payout_requests
		WHERE teacher_id = $1 AND currency_code = $2 AND status = 'pending'`

	var sum int64
	if err := s.tx.GetContext(ctx, &sum, query, teacherID, currency); err != nil {
		return 0, fmt.Errorf("sum pending payouts: %w", classify(err))
	}
	return sum, nil
}
