package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/usecase"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

var validate = validator.New()

type errorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// decodeRequest reads a JSON body of at most 1 MiB and validates it.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request payload")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("field %s failed %q validation", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrWalletNotFound),
		errors.Is(err, usecase.ErrPayoutNotFound),
		errors.Is(err, usecase.ErrEarningNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrInvalidAmount),
		errors.Is(err, usecase.ErrInvalidDecision),
		errors.Is(err, usecase.ErrInvalidStatus),
		errors.Is(err, usecase.ErrCurrencyNotFound):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrAlreadyProcessed),
		errors.Is(err, usecase.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrInsufficientFunds),
		errors.Is(err, usecase.ErrSessionNotCompleted):
		return http.StatusUnprocessableEntity
	case usecase.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var publicMessages = []struct {
	err error
	msg string
}{
	{usecase.ErrWalletNotFound, "wallet not found"},
	{usecase.ErrPayoutNotFound, "payout request not found"},
	{usecase.ErrEarningNotFound, "earning not found"},
	{usecase.ErrInvalidAmount, "amount must be positive"},
	{usecase.ErrInvalidDecision, "decision must be approve or reject"},
	{usecase.ErrInvalidStatus, "invalid status"},
	{usecase.ErrCurrencyNotFound, "unknown currency"},
	{usecase.ErrAlreadyProcessed, "payout request already processed"},
	{usecase.ErrInvalidStatusTransition, "status transition not allowed"},
	{usecase.ErrInsufficientFunds, "insufficient funds"},
	{usecase.ErrSessionNotCompleted, "session is not completed"},
	{usecase.ErrTransientStore, "temporarily unavailable, retry"},
}

// handleError logs err at a level matching its class and writes the
// response. Store details never reach the client.
func handleError(w http.ResponseWriter, log logger.Logger, op string, err error, fields ...logger.Field) {
	code := statusFor(err)
	fields = append(fields, logger.StringField("op", op), logger.ErrorField("error", err))
	if code >= http.StatusInternalServerError {
		log.Error("Request failed", fields...)
	} else {
		log.Warn("Request rejected", fields...)
	}

	for _, m := range publicMessages {
		if errors.Is(err, m.err) {
			respondWithError(w, code, m.msg)
			return
		}
	}
	respondWithError(w, code, "internal server error")
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// parsePage reads page and per_page query parameters.
func parsePage(r *http.Request) (models.Page, error) {
	var (
		p   models.Page
		err error
	)
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if p.Number, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid page")
		}
	}
	if v := q.Get("per_page"); v != "" {
		if p.Size, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid per_page")
		}
	}
	return p.Normalize(), nil
}

// parseRange reads from and to as RFC 3339 timestamps or YYYY-MM-DD dates.
// A bare to-date includes the whole day.
func parseRange(r *http.Request) (models.DateRange, error) {
	var rng models.DateRange
	q := r.URL.Query()

	parse := func(name string, endOfDay bool) (time.Time, error) {
		v := q.Get(name)
		if v == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s", name)
		}
		if endOfDay {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}

	var err error
	if rng.From, err = parse("from", false); err != nil {
		return rng, err
	}
	if rng.To, err = parse("to", true); err != nil {
		return rng, err
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && !rng.From.Before(rng.To) {
		return rng, fmt.Errorf("from must be before to")
	}
	return rng, nil
}
