package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/core/middleware"
	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/usecase"
	"github.com/google/uuid"
)

type WalletHandler struct {
	wallets         usecase.WalletUsecase
	summary         usecase.SummaryUsecase
	log             logger.Logger
	defaultCurrency string
}

type creditRequest struct {
	Amount      string          `json:"amount" validate:"required,max=32"`
	Description string          `json:"description" validate:"required,max=255"`
	Reference   *string         `json:"reference,omitempty" validate:"omitempty,max=100"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
}

func NewWalletHandler(wallets usecase.WalletUsecase, summary usecase.SummaryUsecase, log logger.Logger, defaultCurrency string) *WalletHandler {
	return &WalletHandler{wallets: wallets, summary: summary, log: log, defaultCurrency: defaultCurrency}
}

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	wallet, err := h.wallets.GetWallet(r.Context(), id.UserID)
	if err != nil {
		handleError(w, h.log, "get wallet", err, logger.StringField("teacher_id", id.UserID.String()))
		return
	}
	currency, err := h.wallets.GetCurrency(r.Context(), wallet.CurrencyCode)
	if err != nil {
		handleError(w, h.log, "get wallet", err)
		return
	}
	respondWithJSON(w, http.StatusOK, toWalletView(wallet, currency))
}

func (h *WalletHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary, err := h.summary.GetFinancialSummary(r.Context(), id.UserID)
	if err != nil {
		handleError(w, h.log, "financial summary", err, logger.StringField("teacher_id", id.UserID.String()))
		return
	}
	currency, err := h.wallets.GetCurrency(r.Context(), summary.CurrencyCode)
	if err != nil {
		handleError(w, h.log, "financial summary", err)
		return
	}
	respondWithJSON(w, http.StatusOK, toSummaryView(summary, currency))
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter := models.TransactionFilter{
		Type:   models.TransactionType(r.URL.Query().Get("type")),
		Status: models.TransactionStatus(r.URL.Query().Get("status")),
	}
	if filter.Page, err = parsePage(r); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Range, err = parseRange(r); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.wallets.ListTransactions(r.Context(), id.UserID, filter)
	if err != nil {
		handleError(w, h.log, "list transactions", err)
		return
	}
	currency, err := h.teacherCurrency(r.Context(), id.UserID)
	if err != nil {
		handleError(w, h.log, "list transactions", err)
		return
	}

	cs := newCurrencies(h.wallets)
	cs.known[currency.Code] = currency
	view, err := mapPage(r.Context(), cs, page,
		func(*models.WalletTransaction) string { return currency.Code },
		toTransactionView)
	if err != nil {
		handleError(w, h.log, "list transactions", err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// Credit records an externally settled amount on a teacher's wallet.
func (h *WalletHandler) Credit(w http.ResponseWriter, r *http.Request) {
	teacherID, err := pathUUID(r, "teacherId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req creditRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.log.Warn("Invalid credit request", logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	currency, err := h.teacherCurrency(r.Context(), teacherID)
	if err != nil {
		handleError(w, h.log, "credit wallet", err)
		return
	}
	amount, err := currency.ToMinorUnits(req.Amount)
	if err != nil {
		h.log.Warn("Invalid amount", logger.StringField("amount", req.Amount), logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.wallets.Credit(r.Context(), teacherID, usecase.Posting{
		Amount:      amount,
		Description: req.Description,
		Reference:   req.Reference,
		Metadata:    req.Metadata,
	})
	if err != nil {
		handleError(w, h.log, "credit wallet", err, logger.StringField("teacher_id", teacherID.String()))
		return
	}
	respondWithJSON(w, http.StatusCreated, toTransactionView(entry, currency))
}

// teacherCurrency is the currency of the teacher's wallet, or the default
// one a new wallet would be created with.
func (h *WalletHandler) teacherCurrency(ctx context.Context, teacherID uuid.UUID) (*models.Currency, error) {
	return walletCurrency(ctx, h.wallets, teacherID, h.defaultCurrency)
}

func walletCurrency(ctx context.Context, wallets usecase.WalletUsecase, teacherID uuid.UUID, fallback string) (*models.Currency, error) {
	code := fallback
	wallet, err := wallets.GetWallet(ctx, teacherID)
	switch {
	case errors.Is(err, usecase.ErrWalletNotFound):
	case err != nil:
		return nil, err
	default:
		code = wallet.CurrencyCode
	}
	return wallets.GetCurrency(ctx, code)
}
