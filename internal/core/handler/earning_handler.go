package handler

import (
	"net/http"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/core/middleware"
	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/usecase"
	"github.com/google/uuid"
)

type EarningHandler struct {
	earnings        usecase.EarningUsecase
	wallets         usecase.WalletUsecase
	log             logger.Logger
	defaultCurrency string
}

type sessionCompletedRequest struct {
	SessionID   uuid.UUID  `json:"session_id" validate:"required"`
	TeacherID   uuid.UUID  `json:"teacher_id" validate:"required"`
	StudentID   uuid.UUID  `json:"student_id" validate:"required"`
	Amount      string     `json:"amount" validate:"required,max=32"`
	Currency    string     `json:"currency" validate:"omitempty,len=3"`
	Status      string     `json:"status" validate:"required"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type earningStatusRequest struct {
	Status models.EarningStatus `json:"status" validate:"required,oneof=paid cancelled"`
	PaidAt *time.Time           `json:"paid_at,omitempty"`
}

type sessionCompletedResponse struct {
	Created bool        `json:"created"`
	Earning earningView `json:"earning"`
}

func NewEarningHandler(earnings usecase.EarningUsecase, wallets usecase.WalletUsecase, log logger.Logger, defaultCurrency string) *EarningHandler {
	return &EarningHandler{earnings: earnings, wallets: wallets, log: log, defaultCurrency: defaultCurrency}
}

// SessionCompleted is called by the booking subsystem, possibly more than
// once per session. Repeats answer 200 with the earning recorded first.
func (h *EarningHandler) SessionCompleted(w http.ResponseWriter, r *http.Request) {
	var req sessionCompletedRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.log.Warn("Invalid session completion", logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Currency == "" {
		req.Currency = h.defaultCurrency
	}

	currency, err := h.wallets.GetCurrency(r.Context(), req.Currency)
	if err != nil {
		handleError(w, h.log, "record session earning", err)
		return
	}
	amount, err := currency.ToMinorUnits(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	earning, created, err := h.earnings.RecordSessionEarning(r.Context(), models.CompletedSession{
		ID:           req.SessionID,
		TeacherID:    req.TeacherID,
		StudentID:    req.StudentID,
		Amount:       amount,
		CurrencyCode: currency.Code,
		Status:       models.SessionStatus(req.Status),
		CompletedAt:  req.CompletedAt,
	})
	if err != nil {
		handleError(w, h.log, "record session earning", err, logger.StringField("session_id", req.SessionID.String()))
		return
	}

	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	respondWithJSON(w, code, sessionCompletedResponse{Created: created, Earning: toEarningView(earning, currency)})
}

func (h *EarningHandler) ListEarnings(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter := models.EarningFilter{Status: models.EarningStatus(r.URL.Query().Get("status"))}
	if filter.Page, err = parsePage(r); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Range, err = parseRange(r); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.earnings.ListEarnings(r.Context(), id.UserID, filter)
	if err != nil {
		handleError(w, h.log, "list earnings", err)
		return
	}
	view, err := mapPage(r.Context(), newCurrencies(h.wallets), page,
		func(e *models.Earning) string { return e.CurrencyCode },
		toEarningView)
	if err != nil {
		handleError(w, h.log, "list earnings", err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *EarningHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	earningID, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req earningStatusRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var earning *models.Earning
	switch req.Status {
	case models.EarningPaid:
		var paidAt time.Time
		if req.PaidAt != nil {
			paidAt = *req.PaidAt
		}
		earning, err = h.earnings.MarkEarningPaid(r.Context(), earningID, paidAt)
	case models.EarningCancelled:
		earning, err = h.earnings.CancelEarning(r.Context(), earningID)
	}
	if err != nil {
		handleError(w, h.log, "update earning status", err, logger.StringField("earning_id", earningID.String()))
		return
	}

	currency, err := h.wallets.GetCurrency(r.Context(), earning.CurrencyCode)
	if err != nil {
		handleError(w, h.log, "update earning status", err)
		return
	}
	respondWithJSON(w, http.StatusOK, toEarningView(earning, currency))
}
