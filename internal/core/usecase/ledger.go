package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
)

// Options are shared by every usecase constructor.
type Options struct {
	// DefaultCurrency is used when a wallet is created lazily.
	DefaultCurrency string
	// Now defaults to time.Now and is replaced in tests.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = "USD"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Posting describes one balance change requested by a caller.
type Posting struct {
	Amount      int64
	Description string
	Reference   *string
	Metadata    models.Metadata
}

// getCurrency resolves a currency code inside the current unit of work.
func getCurrency(ctx context.Context, st repository.Store, code string) (*models.Currency, error) {
	currency, err := st.GetCurrencyByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCurrencyNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return currency, nil
}

// acquireWallet returns the teacher's wallet under a row lock, creating it
// with a zero balance first when it does not exist yet.
func acquireWallet(ctx context.Context, st repository.Store, teacherID uuid.UUID, currencyCode string, now time.Time) (*models.Wallet, error) {
	if _, err := getCurrency(ctx, st, currencyCode); err != nil {
		return nil, err
	}

	wallet := &models.Wallet{
		ID:           uuid.New(),
		TeacherID:    teacherID,
		Balance:      0,
		CurrencyCode: currencyCode,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := st.InsertWalletIfAbsent(ctx, wallet); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	locked, err := st.LockWalletByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return locked, nil
}

// lockExistingWallet is acquireWallet for operations that must not create.
func lockExistingWallet(ctx context.Context, st repository.Store, teacherID uuid.UUID) (*models.Wallet, error) {
	wallet, err := st.LockWalletByTeacher(ctx, teacherID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return wallet, nil
}

// post applies one entry to a wallet already locked in st. The wallet is
// updated in place so several postings can be chained in one unit of work.
func post(ctx context.Context, st repository.Store, wallet *models.Wallet, kind models.TransactionType, p Posting, now time.Time) (*models.WalletTransaction, error) {
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	delta, err := kind.Delta(p.Amount)
	if err != nil {
		return nil, err
	}

	if delta > 0 && delta > math.MaxInt64-wallet.Balance {
		return nil, fmt.Errorf("%w: balance %d cannot absorb %d", ErrInvalidAmount, wallet.Balance, p.Amount)
	}

	balanceAfter := wallet.Balance + delta
	if balanceAfter < 0 {
		return nil, &InsufficientFundsError{Balance: wallet.Balance, Requested: p.Amount}
	}

	entry := &models.WalletTransaction{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Type:          kind,
		Amount:        p.Amount,
		Description:   p.Description,
		Reference:     p.Reference,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  balanceAfter,
		Status:        models.TransactionStatusCompleted,
		Metadata:      p.Metadata.Clone(),
		CreatedAt:     now,
	}

	if err := st.UpdateWalletBalance(ctx, wallet.ID, balanceAfter); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	if err := st.InsertTransaction(ctx, entry); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	wallet.Balance = balanceAfter
	wallet.UpdatedAt = now
	return entry, nil
}
