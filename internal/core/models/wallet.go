package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a teacher's withdrawable funds in minor units.
// Balance only changes together with an appended WalletTransaction.
type Wallet struct {
	ID           uuid.UUID `json:"id" db:"id"`
	TeacherID    uuid.UUID `json:"teacher_id" db:"teacher_id"`
	Balance      int64     `json:"balance" db:"balance"`
	CurrencyCode string    `json:"currency" db:"currency_code"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
