package repository

import (
	"context"
	"errors"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("record conflict")
	// ErrTransient marks failures that are safe to retry as a whole unit:
	// serialization failures, deadlocks and lock timeouts.
	ErrTransient = errors.New("transient store failure")
)

// TxMode selects the isolation of a unit of work.
type TxMode int

const (
	// ReadWrite runs serializable; all wallet mutations use it.
	ReadWrite TxMode = iota
	// ReadOnly runs on a single repeatable-read snapshot.
	ReadOnly
)

// LedgerRepository hands out transaction-scoped stores.
// fn may be invoked more than once when the store retries a transient
// failure, so it must not have side effects outside the Store it receives.
type LedgerRepository interface {
	WithTx(ctx context.Context, mode TxMode, fn func(Store) error) error
}

// Store is the set of ledger reads and writes available inside one unit of work.
type Store interface {
	WalletStore
	TransactionStore
	EarningStore
	PayoutStore
	CurrencyStore
}

type WalletStore interface {
	// InsertWalletIfAbsent creates the wallet unless one already exists for
	// the teacher. It reports whether a row was inserted.
	InsertWalletIfAbsent(ctx context.Context, wallet *models.Wallet) (bool, error)
	GetWalletByTeacher(ctx context.Context, teacherID uuid.UUID) (*models.Wallet, error)
	// LockWalletByTeacher reads the wallet and holds its row lock until the
	// unit of work ends.
	LockWalletByTeacher(ctx context.Context, teacherID uuid.UUID) (*models.Wallet, error)
	UpdateWalletBalance(ctx context.Context, walletID uuid.UUID, balance int64) error
	ListWallets(ctx context.Context) ([]models.Wallet, error)
}

type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *models.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, filter models.TransactionFilter) ([]models.WalletTransaction, int, error)
	// SumTransactionDeltas returns the signed sum of all entries and the
	// balance_after of the latest one (nil when the wallet has no entries).
	SumTransactionDeltas(ctx context.Context, walletID uuid.UUID) (int64, *int64, error)
}

type EarningStore interface {
	// InsertEarningIfAbsent creates the earning unless one exists for the
	// same session. It reports whether a row was inserted.
	InsertEarningIfAbsent(ctx context.Context, earning *models.Earning) (bool, error)
	GetEarningBySession(ctx context.Context, sessionID uuid.UUID) (*models.Earning, error)
	LockEarning(ctx context.Context, id uuid.UUID) (*models.Earning, error)
	UpdateEarning(ctx context.Context, earning *models.Earning) error
	ListEarnings(ctx context.Context, teacherID uuid.UUID, filter models.EarningFilter) ([]models.Earning, int, error)
	// SumEarned totals every earning in currency that is not cancelled.
	SumEarned(ctx context.Context, teacherID uuid.UUID, currency string) (int64, error)
}

type PayoutStore interface {
	InsertPayout(ctx context.Context, payout *models.PayoutRequest) error
	GetPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	LockPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	UpdatePayout(ctx context.Context, payout *models.PayoutRequest) error
	ListPayouts(ctx context.Context, filter models.PayoutFilter) ([]models.PayoutRequest, int, error)
	SumPendingPayouts(ctx context.Context, teacherID uuid.UUID, currency string) (int64, error)
}

type CurrencyStore interface {
	GetCurrencyByCode(ctx context.Context, code string) (*models.Currency, error)
}
