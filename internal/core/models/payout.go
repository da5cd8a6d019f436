package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutCompleted PayoutStatus = "completed"
	PayoutRejected  PayoutStatus = "rejected"
)

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutCompleted, PayoutRejected:
		return true
	}
	return false
}

func (s PayoutStatus) Terminal() bool {
	return s == PayoutCompleted || s == PayoutRejected
}

type PayoutDecision string

const (
	PayoutApprove PayoutDecision = "approve"
	PayoutReject  PayoutDecision = "reject"
)

func (d PayoutDecision) Valid() bool {
	return d == PayoutApprove || d == PayoutReject
}

// PayoutRequest is a teacher's request to withdraw wallet funds.
// TransactionID is set only once the wallet has been debited.
type PayoutRequest struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	TeacherID      uuid.UUID    `json:"teacher_id" db:"teacher_id"`
	Amount         int64        `json:"amount" db:"amount"`
	CurrencyCode   string       `json:"currency" db:"currency_code"`
	Status         PayoutStatus `json:"status" db:"status"`
	PaymentMethod  string       `json:"payment_method" db:"payment_method"`
	PaymentDetails Metadata     `json:"payment_details" db:"payment_details"`
	AdminNote      *string      `json:"admin_note,omitempty" db:"admin_note"`
	ProcessedAt    *time.Time   `json:"processed_at,omitempty" db:"processed_at"`
	ProcessedBy    *uuid.UUID   `json:"processed_by,omitempty" db:"processed_by"`
	TransactionID  *uuid.UUID   `json:"transaction_id,omitempty" db:"transaction_id"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// PayoutReference is the transaction reference used for a payout debit.
func PayoutReference(id uuid.UUID) string {
	return fmt.Sprintf("PAYOUT-%s", id)
}
