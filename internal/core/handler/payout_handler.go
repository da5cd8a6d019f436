package handler

import (
	"net/http"

	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/core/middleware"
	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/usecase"
	"github.com/google/uuid"
)

type PayoutHandler struct {
	payouts         usecase.PayoutUsecase
	wallets         usecase.WalletUsecase
	log             logger.Logger
	defaultCurrency string
}

type payoutRequest struct {
	Amount         string          `json:"amount" validate:"required,max=32"`
	PaymentMethod  string          `json:"payment_method" validate:"required,max=50"`
	PaymentDetails models.Metadata `json:"payment_details,omitempty"`
}

type processPayoutRequest struct {
	Decision models.PayoutDecision `json:"decision" validate:"required,oneof=approve reject"`
	Note     string                `json:"note,omitempty" validate:"max=500"`
}

func NewPayoutHandler(payouts usecase.PayoutUsecase, wallets usecase.WalletUsecase, log logger.Logger, defaultCurrency string) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, wallets: wallets, log: log, defaultCurrency: defaultCurrency}
}

func (h *PayoutHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req payoutRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.log.Warn("Invalid payout request", logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	currency, err := walletCurrency(r.Context(), h.wallets, id.UserID, h.defaultCurrency)
	if err != nil {
		handleError(w, h.log, "request payout", err)
		return
	}
	amount, err := currency.ToMinorUnits(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	payout, err := h.payouts.RequestPayout(r.Context(), id.UserID, usecase.PayoutRequestInput{
		Amount:         amount,
		PaymentMethod:  req.PaymentMethod,
		PaymentDetails: req.PaymentDetails,
	})
	if err != nil {
		handleError(w, h.log, "request payout", err, logger.StringField("teacher_id", id.UserID.String()))
		return
	}
	respondWithJSON(w, http.StatusCreated, toPayoutView(payout, currency))
}

// ListOwnPayouts lists the calling teacher's requests.
func (h *PayoutHandler) ListOwnPayouts(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.list(w, r, &id.UserID)
}

// ListPayouts lists every request, optionally narrowed by teacher_id.
func (h *PayoutHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	var teacherID *uuid.UUID
	if v := r.URL.Query().Get("teacher_id"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid teacher_id")
			return
		}
		teacherID = &parsed
	}
	h.list(w, r, teacherID)
}

func (h *PayoutHandler) list(w http.ResponseWriter, r *http.Request, teacherID *uuid.UUID) {
	var err error
	filter := models.PayoutFilter{
		TeacherID: teacherID,
		Status:    models.PayoutStatus(r.URL.Query().Get("status")),
	}
	if filter.Page, err = parsePage(r); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Range, err = parseRange(r); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.payouts.ListPayoutRequests(r.Context(), filter)
	if err != nil {
		handleError(w, h.log, "list payout requests", err)
		return
	}
	view, err := mapPage(r.Context(), newCurrencies(h.wallets), page,
		func(p *models.PayoutRequest) string { return p.CurrencyCode },
		toPayoutView)
	if err != nil {
		handleError(w, h.log, "list payout requests", err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *PayoutHandler) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	admin, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	requestID, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req processPayoutRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	payout, err := h.payouts.ProcessPayoutRequest(r.Context(), requestID, usecase.PayoutDecisionInput{
		AdminID:  admin.UserID,
		Decision: req.Decision,
		Note:     req.Note,
	})
	if err != nil {
		handleError(w, h.log, "process payout request", err,
			logger.StringField("payout_id", requestID.String()),
			logger.StringField("decision", string(req.Decision)))
		return
	}

	currency, err := h.wallets.GetCurrency(r.Context(), payout.CurrencyCode)
	if err != nil {
		handleError(w, h.log, "process payout request", err)
		return
	}
	respondWithJSON(w, http.StatusOK, toPayoutView(payout, currency))
}
