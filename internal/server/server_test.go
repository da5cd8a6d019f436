package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/cache"
	"github.com/Nzyazin/tutorledger/internal/core/handler"
	"github.com/Nzyazin/tutorledger/internal/core/middleware"
	"github.com/Nzyazin/tutorledger/internal/core/repository/memory"
	"github.com/Nzyazin/tutorledger/internal/core/usecase"
	"github.com/Nzyazin/tutorledger/internal/server"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const jwtSecret = "server-test-secret"

type api struct {
	t      *testing.T
	router http.Handler
}

func newAPI(t *testing.T, health func(context.Context) error) *api {
	log := zaptest.NewLogger(t)
	repo := memory.NewRepository()
	summaries := cache.NewNop()
	opts := usecase.Options{DefaultCurrency: "USD"}

	wallets := usecase.NewWalletUsecase(repo, summaries, log, opts)
	earnings := usecase.NewEarningUsecase(repo, summaries, log, opts)
	payouts := usecase.NewPayoutUsecase(repo, summaries, log, opts)
	summary := usecase.NewSummaryUsecase(repo, summaries, log, opts)

	router := server.NewRouter(log, jwtSecret, server.Handlers{
		Wallet:  handler.NewWalletHandler(wallets, summary, log, "USD"),
		Earning: handler.NewEarningHandler(earnings, wallets, log, "USD"),
		Payout:  handler.NewPayoutHandler(payouts, wallets, log, "USD"),
		Health:  health,
	}, prometheus.NewRegistry())

	return &api{t: t, router: router}
}

func (a *api) token(userID uuid.UUID, role middleware.Role) string {
	tok, err := middleware.IssueToken(jwtSecret, middleware.Identity{UserID: userID, Role: role}, time.Hour)
	require.NoError(a.t, err)
	return tok
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func money(t *testing.T, v any) string {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected money object, got %v", v)
	return m["amount"].(string)
}

func TestHealth(t *testing.T) {
	a := newAPI(t, nil)
	rec := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newAPI(t, func(context.Context) error { return errors.New("db down") })
	rec = down.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutesRequireAuth(t *testing.T) {
	a := newAPI(t, nil)
	teacher := a.token(uuid.New(), middleware.RoleTeacher)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/v1/teacher/wallet", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/v1/admin/payouts", teacher, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/v1/sessions/completed", teacher, map[string]any{}).Code)
}

func TestLedgerFlow(t *testing.T) {
	a := newAPI(t, nil)
	teacherID := uuid.New()
	teacher := a.token(teacherID, middleware.RoleTeacher)
	admin := a.token(uuid.New(), middleware.RoleAdmin)

	rec := a.do(http.MethodGet, "/api/v1/teacher/wallet", teacher, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// session completion, delivered twice
	session := map[string]any{
		"session_id": uuid.New(),
		"teacher_id": teacherID,
		"student_id": uuid.New(),
		"amount":     "50.00",
		"status":     "completed",
	}
	rec = a.do(http.MethodPost, "/api/v1/sessions/completed", admin, session)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode(t, rec)
	assert.Equal(t, true, first["created"])

	rec = a.do(http.MethodPost, "/api/v1/sessions/completed", admin, session)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decode(t, rec)["created"])

	// settlement credit
	rec = a.do(http.MethodPost, "/api/v1/admin/wallets/"+teacherID.String()+"/credit", admin, map[string]any{
		"amount":      "50",
		"description": "session payment",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	credit := decode(t, rec)
	assert.Equal(t, "50.00", money(t, credit["balance_after"]))

	rec = a.do(http.MethodGet, "/api/v1/teacher/summary", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)
	assert.Equal(t, "50.00", money(t, summary["wallet_balance"]))
	assert.Equal(t, "50.00", money(t, summary["total_earned"]))
	assert.Equal(t, "50.00", money(t, summary["available_for_payout"]))

	// payout above balance is refused
	rec = a.do(http.MethodPost, "/api/v1/teacher/payouts", teacher, map[string]any{
		"amount":         "50.01",
		"payment_method": "bank_transfer",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(http.MethodPost, "/api/v1/teacher/payouts", teacher, map[string]any{
		"amount":          "30",
		"payment_method":  "bank_transfer",
		"payment_details": map[string]any{"iban": "DE89370400440532013000"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payoutID := decode(t, rec)["id"].(string)

	rec = a.do(http.MethodGet, "/api/v1/teacher/summary", teacher, nil)
	summary = decode(t, rec)
	assert.Equal(t, "30.00", money(t, summary["pending_payouts"]))
	assert.Equal(t, "20.00", money(t, summary["available_for_payout"]))

	rec = a.do(http.MethodGet, "/api/v1/admin/payouts?status=pending", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])

	rec = a.do(http.MethodPost, "/api/v1/admin/payouts/"+payoutID+"/process", admin, map[string]any{
		"decision": "approve",
		"note":     "sent",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	processed := decode(t, rec)
	assert.Equal(t, "completed", processed["status"])
	assert.NotEmpty(t, processed["transaction_id"])

	rec = a.do(http.MethodPost, "/api/v1/admin/payouts/"+payoutID+"/process", admin, map[string]any{"decision": "reject"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodGet, "/api/v1/teacher/wallet", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "20.00", money(t, decode(t, rec)["balance"]))

	rec = a.do(http.MethodGet, "/api/v1/teacher/transactions?type=debit", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode(t, rec)
	assert.Equal(t, float64(1), history["total"])
	debit := history["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "PAYOUT-"+payoutID, debit["reference"])
	assert.Equal(t, "50.00", money(t, debit["balance_before"]))
	assert.Equal(t, "20.00", money(t, debit["balance_after"]))

	rec = a.do(http.MethodGet, "/api/v1/teacher/payouts", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])
}

func TestEarningStatusUpdate(t *testing.T) {
	a := newAPI(t, nil)
	teacherID := uuid.New()
	teacher := a.token(teacherID, middleware.RoleTeacher)
	admin := a.token(uuid.New(), middleware.RoleAdmin)

	rec := a.do(http.MethodPost, "/api/v1/sessions/completed", admin, map[string]any{
		"session_id": uuid.New(),
		"teacher_id": teacherID,
		"student_id": uuid.New(),
		"amount":     "25.50",
		"currency":   "EUR",
		"status":     "completed",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	earningID := decode(t, rec)["earning"].(map[string]any)["id"].(string)

	rec = a.do(http.MethodPut, "/api/v1/admin/earnings/"+earningID+"/status", admin, map[string]any{"status": "paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "paid", decode(t, rec)["status"])

	rec = a.do(http.MethodPut, "/api/v1/admin/earnings/"+earningID+"/status", admin, map[string]any{"status": "cancelled"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPut, "/api/v1/admin/earnings/"+earningID+"/status", admin, map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/api/v1/teacher/earnings?status=paid", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Equal(t, float64(1), list["total"])
	item := list["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "25.50", money(t, item["amount"]))
}

func TestRequestValidation(t *testing.T) {
	a := newAPI(t, nil)
	teacherID := uuid.New()
	teacher := a.token(teacherID, middleware.RoleTeacher)
	admin := a.token(uuid.New(), middleware.RoleAdmin)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"too precise", http.MethodPost, "/api/v1/admin/wallets/" + teacherID.String() + "/credit", admin,
			map[string]any{"amount": "1.005", "description": "x"}, http.StatusBadRequest},
		{"negative credit", http.MethodPost, "/api/v1/admin/wallets/" + teacherID.String() + "/credit", admin,
			map[string]any{"amount": "-1", "description": "x"}, http.StatusBadRequest},
		{"bad teacher id", http.MethodPost, "/api/v1/admin/wallets/nope/credit", admin,
			map[string]any{"amount": "1", "description": "x"}, http.StatusBadRequest},
		{"missing description", http.MethodPost, "/api/v1/admin/wallets/" + teacherID.String() + "/credit", admin,
			map[string]any{"amount": "1"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/teacher/payouts", teacher,
			map[string]any{"amount": "1", "payment_method": "card", "extra": true}, http.StatusBadRequest},
		{"bad decision", http.MethodPost, "/api/v1/admin/payouts/" + uuid.NewString() + "/process", admin,
			map[string]any{"decision": "complete"}, http.StatusBadRequest},
		{"unknown payout", http.MethodPost, "/api/v1/admin/payouts/" + uuid.NewString() + "/process", admin,
			map[string]any{"decision": "approve"}, http.StatusNotFound},
		{"session not completed", http.MethodPost, "/api/v1/sessions/completed", admin,
			map[string]any{"session_id": uuid.New(), "teacher_id": teacherID, "student_id": uuid.New(), "amount": "1", "status": "scheduled"},
			http.StatusUnprocessableEntity},
		{"unknown currency", http.MethodPost, "/api/v1/sessions/completed", admin,
			map[string]any{"session_id": uuid.New(), "teacher_id": teacherID, "student_id": uuid.New(), "amount": "1", "currency": "ZZZ", "status": "completed"},
			http.StatusBadRequest},
		{"bad page", http.MethodGet, "/api/v1/teacher/transactions?page=x", teacher, nil, http.StatusBadRequest},
		{"bad range", http.MethodGet, "/api/v1/teacher/earnings?from=2024-02-01&to=2024-01-01", teacher, nil, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/v1/teacher/payouts?status=approved", teacher, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := a.do(tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}
