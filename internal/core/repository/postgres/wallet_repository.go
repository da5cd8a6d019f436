package postgres

import (
	"context"
	"fmt"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// txStore implements repository.Store on top of one open transaction.
type txStore struct {
	tx *sqlx.Tx
}

var _ repository.Store = (*txStore)(nil)

const walletColumns = `id, teacher_id, balance, currency_code, is_active, created_at, updated_at`

func (s *txStore) InsertWalletIfAbsent(ctx context.Context, w *models.Wallet) (bool, error) {
	const query = `INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (teacher_id) DO NOTHING`

	res, err := s.tx.ExecContext(ctx, query,
		w.ID, w.TeacherID, w.Balance, w.CurrencyCode, w.IsActive, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert wallet: %w", classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert wallet: %w", err)
	}
	return n == 1, nil
}

func (s *txStore) GetWalletByTeacher(ctx context.Context, teacherID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE teacher_id = $1`
	if err := s.tx.GetContext(ctx, &wallet, query, teacherID); err != nil {
		return nil, fmt.Errorf("get wallet of teacher %s: %w", teacherID, classify(err))
	}
	return &wallet, nil
}

func (s *txStore) LockWalletByTeacher(ctx context.Context, teacherID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE teacher_id = $1 FOR UPDATE`
	if err := s.tx.GetContext(ctx, &wallet, query, teacherID); err != nil {
		return nil, fmt.Errorf("lock wallet of teacher %s: %w", teacherID, classify(err))
	}
	return &wallet, nil
}

func (s *txStore) UpdateWalletBalance(ctx context.Context, walletID uuid.UUID, balance int64) error {
	const query = `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`

	res, err := s.tx.ExecContext(ctx, query, balance, walletID)
	if err != nil {
		return fmt.Errorf("update balance: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update balance of wallet %s: %w", walletID, repository.ErrNotFound)
	}
	return nil
}

func (s *txStore) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	var wallets []models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets ORDER BY created_at, id`
	if err := s.tx.SelectContext(ctx, &wallets, query); err != nil {
		return nil, fmt.Errorf("list wallets: %w", classify(err))
	}
	return wallets, nil
}

const transactionColumns = `id, wallet_id, type, amount, description, reference,
	balance_before, balance_after, status, metadata, created_at`

func (s *txStore) InsertTransaction(ctx context.Context, t *models.WalletTransaction) error {
	const query = `INSERT INTO wallet_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.tx.ExecContext(ctx, query,
		t.ID,
		t.WalletID,
		string(t.Type),
		t.Amount,
		t.Description,
		t.Reference,
		t.BalanceBefore,
		t.BalanceAfter,
		string(t.Status),
		t.Metadata,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create transaction: %w", classify(err))
	}
	return nil
}

func (s *txStore) ListTransactions(ctx context.Context, walletID uuid.UUID, f models.TransactionFilter) ([]models.WalletTransaction, int, error) {
	var w whereClause
	w.add("wallet_id = $%d", walletID)
	if f.Type != "" {
		w.add("type = $%d", string(f.Type))
	}
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}
	w.addRange("created_at", f.Range)

	var total int
	if err := s.tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM wallet_transactions`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", classify(err))
	}

	page := f.Page.Normalize()
	limit, args := w.limitOffset(page)
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions` + w.String() +
		` ORDER BY seq DESC` + limit

	txs := []models.WalletTransaction{}
	if err := s.tx.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", classify(err))
	}
	return txs, total, nil
}

func (s *txStore) SumTransactionDeltas(ctx context.Context, walletID uuid.UUID) (int64, *int64, error) {
	const sumQuery = `SELECT COALESCE(SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END), 0)
		FROM wallet_transactions WHERE wallet_id = $1`

	var sum int64
	if err := s.tx.GetContext(ctx, &sum, sumQuery, walletID); err != nil {
		return 0, nil, fmt.Errorf("sum transactions: %w", classify(err))
	}

	const lastQuery = `SELECT balance_after FROM wallet_transactions
		WHERE wallet_id = $1 ORDER BY seq DESC LIMIT 1`

	var last []int64
	if err := s.tx.SelectContext(ctx, &last, lastQuery, walletID); err != nil {
		return 0, nil, fmt.Errorf("last transaction: %w", classify(err))
	}
	if len(last) == 0 {
		return sum, nil, nil
	}
	return sum, &last[0], nil
}

func (s *txStore) GetCurrencyByCode(ctx context.Context, code string) (*models.Currency, error) {
	var currency models.Currency
	query := `SELECT code, name, exponent FROM currencies WHERE code = $1`
	if err := s.tx.GetContext(ctx, &currency, query, code); err != nil {
		return nil, fmt.Errorf("get currency %s: %w", code, classify(err))
	}
	return &currency, nil
}
