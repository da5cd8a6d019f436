package models

import (
	"time"

	"github.com/google/uuid"
)

type EarningStatus string

const (
	EarningPending   EarningStatus = "pending"
	EarningPaid      EarningStatus = "paid"
	EarningCancelled EarningStatus = "cancelled"
)

func (s EarningStatus) Valid() bool {
	switch s {
	case EarningPending, EarningPaid, EarningCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may advance to next.
// Earnings only move forward out of pending.
func (s EarningStatus) CanTransitionTo(next EarningStatus) bool {
	return s == EarningPending && (next == EarningPaid || next == EarningCancelled)
}

// Earning is a teacher's entitlement from one completed session.
type Earning struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	TeacherID    uuid.UUID     `json:"teacher_id" db:"teacher_id"`
	SessionID    uuid.UUID     `json:"session_id" db:"session_id"`
	StudentID    uuid.UUID     `json:"student_id" db:"student_id"`
	Amount       int64         `json:"amount" db:"amount"`
	CurrencyCode string        `json:"currency" db:"currency_code"`
	Status       EarningStatus `json:"status" db:"status"`
	PaidAt       *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

type SessionStatus string

const SessionCompleted SessionStatus = "completed"

// CompletedSession is what the booking subsystem hands over when a session ends.
type CompletedSession struct {
	ID           uuid.UUID     `json:"session_id"`
	TeacherID    uuid.UUID     `json:"teacher_id"`
	StudentID    uuid.UUID     `json:"student_id"`
	Amount       int64         `json:"amount"`
	CurrencyCode string        `json:"currency"`
	Status       SessionStatus `json:"status"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}
