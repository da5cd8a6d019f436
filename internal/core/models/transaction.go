package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransactionType is the direction of a wallet transaction.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionCredit, TransactionDebit:
		return true
	}
	return false
}

// Delta returns the signed balance change for an unsigned amount.
func (t TransactionType) Delta(amount int64) (int64, error) {
	switch t {
	case TransactionCredit:
		return amount, nil
	case TransactionDebit:
		return -amount, nil
	default:
		return 0, fmt.Errorf("unknown transaction type %q", string(t))
	}
}

type TransactionStatus string

const TransactionStatusCompleted TransactionStatus = "completed"

// WalletTransaction is an immutable ledger entry.
// BalanceAfter always equals BalanceBefore plus the signed delta.
type WalletTransaction struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	WalletID      uuid.UUID         `json:"wallet_id" db:"wallet_id"`
	Type          TransactionType   `json:"type" db:"type"`
	Amount        int64             `json:"amount" db:"amount"`
	Description   string            `json:"description" db:"description"`
	Reference     *string           `json:"reference,omitempty" db:"reference"`
	BalanceBefore int64             `json:"balance_before" db:"balance_before"`
	BalanceAfter  int64             `json:"balance_after" db:"balance_after"`
	Status        TransactionStatus `json:"status" db:"status"`
	Metadata      Metadata          `json:"metadata" db:"metadata"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// Delta is the signed change this entry applied to the wallet.
func (t WalletTransaction) Delta() int64 {
	d, err := t.Type.Delta(t.Amount)
	if err != nil {
		// Entries are only built through the ledger posting path, which
		// rejects unknown types before anything is persisted.
		panic(err)
	}
	return d
}
