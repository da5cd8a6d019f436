package usecase

import (
	"errors"
	"fmt"

	"github.com/Nzyazin/tutorledger/internal/core/repository"
)

var (
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrAlreadyProcessed        = errors.New("payout request already processed")
	ErrDuplicateEarning        = errors.New("earning already recorded for session")
	ErrTransientStore          = errors.New("store temporarily unavailable, retry")
	ErrSessionNotCompleted     = errors.New("session is not completed")
	ErrPayoutNotFound          = errors.New("payout request not found")
	ErrEarningNotFound         = errors.New("earning not found")
	ErrInvalidDecision         = errors.New("invalid payout decision")
	ErrInvalidStatus           = errors.New("invalid status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrCurrencyNotFound        = errors.New("currency not found")
)

// InsufficientFundsError carries the figures behind a rejected withdrawal.
type InsufficientFundsError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d, requested %d", e.Balance, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// IsRetryable reports whether the caller may safely repeat the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

// IsClientError reports whether err was caused by the caller's input or by
// the current state of the ledger rather than by the store.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrInsufficientFunds,
		ErrWalletNotFound,
		ErrAlreadyProcessed,
		ErrSessionNotCompleted,
		ErrPayoutNotFound,
		ErrEarningNotFound,
		ErrInvalidDecision,
		ErrInvalidStatus,
		ErrInvalidStatusTransition,
		ErrCurrencyNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// storeErr lifts a transient repository failure into the usecase taxonomy.
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrTransient) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransientStore, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
