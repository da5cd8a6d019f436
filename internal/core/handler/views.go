package handler

import (
	"context"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/usecase"
	"github.com/google/uuid"
)

// Money is rendered twice: as a decimal string for display and as the exact
// minor-unit integer the ledger stores.
type money struct {
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
}

func newMoney(c *models.Currency, minor int64) money {
	return money{Amount: c.Format(minor), AmountMinor: minor}
}

type walletView struct {
	ID        uuid.UUID `json:"id"`
	TeacherID uuid.UUID `json:"teacher_id"`
	Balance   money     `json:"balance"`
	Currency  string    `json:"currency"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toWalletView(w *models.Wallet, c *models.Currency) walletView {
	return walletView{
		ID:        w.ID,
		TeacherID: w.TeacherID,
		Balance:   newMoney(c, w.Balance),
		Currency:  w.CurrencyCode,
		IsActive:  w.IsActive,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

type transactionView struct {
	ID            uuid.UUID                `json:"id"`
	WalletID      uuid.UUID                `json:"wallet_id"`
	Type          models.TransactionType   `json:"type"`
	Amount        money                    `json:"amount"`
	Description   string                   `json:"description"`
	Reference     *string                  `json:"reference,omitempty"`
	BalanceBefore money                    `json:"balance_before"`
	BalanceAfter  money                    `json:"balance_after"`
	Status        models.TransactionStatus `json:"status"`
	Metadata      models.Metadata          `json:"metadata,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

func toTransactionView(t *models.WalletTransaction, c *models.Currency) transactionView {
	return transactionView{
		ID:            t.ID,
		WalletID:      t.WalletID,
		Type:          t.Type,
		Amount:        newMoney(c, t.Amount),
		Description:   t.Description,
		Reference:     t.Reference,
		BalanceBefore: newMoney(c, t.BalanceBefore),
		BalanceAfter:  newMoney(c, t.BalanceAfter),
		Status:        t.Status,
		Metadata:      t.Metadata,
		CreatedAt:     t.CreatedAt,
	}
}

type earningView struct {
	ID        uuid.UUID            `json:"id"`
	TeacherID uuid.UUID            `json:"teacher_id"`
	SessionID uuid.UUID            `json:"session_id"`
	StudentID uuid.UUID            `json:"student_id"`
	Amount    money                `json:"amount"`
	Currency  string               `json:"currency"`
	Status    models.EarningStatus `json:"status"`
	PaidAt    *time.Time           `json:"paid_at,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

func toEarningView(e *models.Earning, c *models.Currency) earningView {
	return earningView{
		ID:        e.ID,
		TeacherID: e.TeacherID,
		SessionID: e.SessionID,
		StudentID: e.StudentID,
		Amount:    newMoney(c, e.Amount),
		Currency:  e.CurrencyCode,
		Status:    e.Status,
		PaidAt:    e.PaidAt,
		CreatedAt: e.CreatedAt,
	}
}

type payoutView struct {
	ID             uuid.UUID           `json:"id"`
	TeacherID      uuid.UUID           `json:"teacher_id"`
	Amount         money               `json:"amount"`
	Currency       string              `json:"currency"`
	Status         models.PayoutStatus `json:"status"`
	PaymentMethod  string              `json:"payment_method"`
	PaymentDetails models.Metadata     `json:"payment_details,omitempty"`
	AdminNote      *string             `json:"admin_note,omitempty"`
	ProcessedAt    *time.Time          `json:"processed_at,omitempty"`
	ProcessedBy    *uuid.UUID          `json:"processed_by,omitempty"`
	TransactionID  *uuid.UUID          `json:"transaction_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func toPayoutView(p *models.PayoutRequest, c *models.Currency) payoutView {
	return payoutView{
		ID:             p.ID,
		TeacherID:      p.TeacherID,
		Amount:         newMoney(c, p.Amount),
		Currency:       p.CurrencyCode,
		Status:         p.Status,
		PaymentMethod:  p.PaymentMethod,
		PaymentDetails: p.PaymentDetails,
		AdminNote:      p.AdminNote,
		ProcessedAt:    p.ProcessedAt,
		ProcessedBy:    p.ProcessedBy,
		TransactionID:  p.TransactionID,
		CreatedAt:      p.CreatedAt,
	}
}

type summaryView struct {
	TeacherID          uuid.UUID `json:"teacher_id"`
	Currency           string    `json:"currency"`
	WalletBalance      money     `json:"wallet_balance"`
	TotalEarned        money     `json:"total_earned"`
	PendingPayouts     money     `json:"pending_payouts"`
	AvailableForPayout money     `json:"available_for_payout"`
}

func toSummaryView(s *models.FinancialSummary, c *models.Currency) summaryView {
	return summaryView{
		TeacherID:          s.TeacherID,
		Currency:           s.CurrencyCode,
		WalletBalance:      newMoney(c, s.WalletBalance),
		TotalEarned:        newMoney(c, s.TotalEarned),
		PendingPayouts:     newMoney(c, s.PendingPayouts),
		AvailableForPayout: newMoney(c, s.AvailableForPayout),
	}
}

type pageView[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// currencies memoizes currency lookups for the lifetime of one request.
type currencies struct {
	wallets usecase.WalletUsecase
	known   map[string]*models.Currency
}

func newCurrencies(wallets usecase.WalletUsecase) *currencies {
	return &currencies{wallets: wallets, known: map[string]*models.Currency{}}
}

func (c *currencies) get(ctx context.Context, code string) (*models.Currency, error) {
	if cur, ok := c.known[code]; ok {
		return cur, nil
	}
	cur, err := c.wallets.GetCurrency(ctx, code)
	if err != nil {
		return nil, err
	}
	c.known[code] = cur
	return cur, nil
}

// mapPage converts a page of ledger records, resolving each record's currency.
func mapPage[M, V any](ctx context.Context, cs *currencies, in *models.PageResult[M], code func(*M) string, view func(*M, *models.Currency) V) (*pageView[V], error) {
	out := &pageView[V]{Items: make([]V, 0, len(in.Items)), Total: in.Total, Page: in.Page, PerPage: in.PerPage}
	for i := range in.Items {
		cur, err := cs.get(ctx, code(&in.Items[i]))
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, view(&in.Items[i], cur))
	}
	return out, nil
}
