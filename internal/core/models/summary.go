package models

import "github.com/google/uuid"

// FinancialSummary is a point-in-time view over wallet, earnings and payouts.
type FinancialSummary struct {
	TeacherID          uuid.UUID `json:"teacher_id"`
	CurrencyCode       string    `json:"currency"`
	WalletBalance      int64     `json:"wallet_balance"`
	TotalEarned        int64     `json:"total_earned"`
	PendingPayouts     int64     `json:"pending_payouts"`
	AvailableForPayout int64     `json:"available_for_payout"`
}
