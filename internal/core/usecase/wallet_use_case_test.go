package usecase_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/Nzyazin/tutorledger/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertBalanceMatchesLedger(t *testing.T, f *fixture, teacherID uuid.UUID) {
	t.Helper()
	err := f.repo.WithTx(context.Background(), repository.ReadOnly, func(st repository.Store) error {
		wallet, err := st.GetWalletByTeacher(context.Background(), teacherID)
		if err != nil {
			return err
		}
		sum, last, err := st.SumTransactionDeltas(context.Background(), wallet.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, wallet.Balance, sum, "balance must equal the sum of deltas")
		if last != nil {
			assert.Equal(t, wallet.Balance, *last, "latest balance_after must equal balance")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestGetOrCreateWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacherID := uuid.New()

	first, err := f.wallets.GetOrCreateWallet(ctx, teacherID, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Balance)
	assert.Equal(t, "EUR", first.CurrencyCode)
	assert.True(t, first.IsActive)

	second, err := f.wallets.GetOrCreateWallet(ctx, teacherID, "USD")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "EUR", second.CurrencyCode, "existing wallet keeps its currency")
}

func TestGetOrCreateWalletConcurrentFirstUse(t *testing.T) {
	f := newFixture(t)
	teacherID := uuid.New()

	const workers = 20
	ids := make([]uuid.UUID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := f.wallets.GetOrCreateWallet(context.Background(), teacherID, "")
			if assert.NoError(t, err) {
				ids[i] = w.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestGetOrCreateWalletUnknownCurrency(t *testing.T) {
	f := newFixture(t)

	_, err := f.wallets.GetOrCreateWallet(context.Background(), uuid.New(), "XXX")
	assert.ErrorIs(t, err, usecase.ErrCurrencyNotFound)
}

func TestCredit(t *testing.T) {
	f := newFixture(t)
	teacherID := uuid.New()
	ref := "SETTLE-1"

	entry, err := f.wallets.Credit(context.Background(), teacherID, usecase.Posting{
		Amount:      5000,
		Description: "session payment",
		Reference:   &ref,
		Metadata:    models.Metadata{"source": "settlement"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.TransactionCredit, entry.Type)
	assert.Equal(t, int64(5000), entry.Amount)
	assert.Equal(t, int64(0), entry.BalanceBefore)
	assert.Equal(t, int64(5000), entry.BalanceAfter)
	assert.Equal(t, models.TransactionStatusCompleted, entry.Status)
	assert.Equal(t, "SETTLE-1", *entry.Reference)
	assert.Equal(t, fixedNow, entry.CreatedAt)

	wallet, err := f.wallets.GetWallet(context.Background(), teacherID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), wallet.Balance)
	assert.Equal(t, "USD", wallet.CurrencyCode)
	assert.Equal(t, 1, f.cache.invalidated(teacherID))
	assertBalanceMatchesLedger(t, f, teacherID)
}

func TestInvalidAmounts(t *testing.T) {
	f := newFixture(t)
	teacherID := uuid.New()
	f.credit(t, teacherID, 100)

	for _, amount := range []int64{0, -1} {
		_, err := f.wallets.Credit(context.Background(), teacherID, usecase.Posting{Amount: amount})
		assert.ErrorIs(t, err, usecase.ErrInvalidAmount)

		_, err = f.wallets.Debit(context.Background(), teacherID, usecase.Posting{Amount: amount})
		assert.ErrorIs(t, err, usecase.ErrInvalidAmount)
	}

	wallet, err := f.wallets.GetWallet(context.Background(), teacherID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), wallet.Balance)
}

func TestCreditDebitRoundTrip(t *testing.T) {
	f := newFixture(t)
	teacherID := uuid.New()
	f.credit(t, teacherID, 1234)

	for _, amount := range []int64{1, 99, 5000, 123456789} {
		before, err := f.wallets.GetWallet(context.Background(), teacherID)
		require.NoError(t, err)

		f.credit(t, teacherID, amount)
		_, err = f.wallets.Debit(context.Background(), teacherID, usecase.Posting{Amount: amount, Description: "refund"})
		require.NoError(t, err)

		after, err := f.wallets.GetWallet(context.Background(), teacherID)
		require.NoError(t, err)
		assert.Equal(t, before.Balance, after.Balance)
	}
	assertBalanceMatchesLedger(t, f, teacherID)
}

func TestDebitInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	teacherID := uuid.New()
	f.credit(t, teacherID, 500)

	_, err := f.wallets.Debit(context.Background(), teacherID, usecase.Posting{Amount: 501})
	require.ErrorIs(t, err, usecase.ErrInsufficientFunds)

	var insufficient *usecase.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(500), insufficient.Balance)
	assert.Equal(t, int64(501), insufficient.Requested)
	assert.True(t, usecase.IsClientError(err))
	assert.False(t, usecase.IsRetryable(err))

	history, err := f.wallets.ListTransactions(context.Background(), teacherID, models.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, history.Total, "a failed debit leaves no entry")
}

func TestCreditRejectsBalanceOverflow(t *testing.T) {
	f := newFixture(t)
	teacherID := uuid.New()
	f.credit(t, teacherID, 100)

	_, err := f.wallets.Credit(context.Background(), teacherID, usecase.Posting{Amount: math.MaxInt64})
	require.ErrorIs(t, err, usecase.ErrInvalidAmount)
	assert.NotErrorIs(t, err, usecase.ErrInsufficientFunds)

	_, err = f.wallets.Credit(context.Background(), teacherID, usecase.Posting{Amount: math.MaxInt64 - 100})
	require.NoError(t, err)

	wallet, err := f.wallets.GetWallet(context.Background(), teacherID)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), wallet.Balance)
	assertBalanceMatchesLedger(t, f, teacherID)
}

func TestDebitWithoutWallet(t *testing.T) {
	f := newFixture(t)

	_, err := f.wallets.Debit(context.Background(), uuid.New(), usecase.Posting{Amount: 1})
	assert.ErrorIs(t, err, usecase.ErrWalletNotFound)
}

func TestGetWalletNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.wallets.GetWallet(context.Background(), uuid.New())
	assert.ErrorIs(t, err, usecase.ErrWalletNotFound)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	teacherID := uuid.New()
	f.credit(t, teacherID, 1000)

	const (
		workers = 50
		amount  = int64(30)
	)
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.wallets.Debit(context.Background(), teacherID, usecase.Posting{Amount: amount})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, usecase.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// 1000 / 30 = 33 debits fit, leaving 10
	assert.Equal(t, 33, succeeded)
	assert.Equal(t, workers-33, insufficient)

	wallet, err := f.wallets.GetWallet(context.Background(), teacherID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), wallet.Balance)
	assertBalanceMatchesLedger(t, f, teacherID)
}

func TestConcurrentCreditsAndDebitsKeepLedgerConsistent(t *testing.T) {
	f := newFixture(t)
	teacherID := uuid.New()
	f.credit(t, teacherID, 100)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.wallets.Credit(context.Background(), teacherID, usecase.Posting{Amount: 7})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.wallets.Debit(context.Background(), teacherID, usecase.Posting{Amount: 11})
			if err != nil {
				assert.ErrorIs(t, err, usecase.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	wallet, err := f.wallets.GetWallet(context.Background(), teacherID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, wallet.Balance, int64(0))
	assertBalanceMatchesLedger(t, f, teacherID)
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t)
	teacherID := uuid.New()
	f.credit(t, teacherID, 100)
	f.credit(t, teacherID, 200)
	_, err := f.wallets.Debit(context.Background(), teacherID, usecase.Posting{Amount: 50})
	require.NoError(t, err)

	all, err := f.wallets.ListTransactions(context.Background(), teacherID, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all.Items, 3)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, models.TransactionDebit, all.Items[0].Type, "newest first")
	assert.Equal(t, 1, all.Page)
	assert.Equal(t, models.DefaultPageSize, all.PerPage)

	credits, err := f.wallets.ListTransactions(context.Background(), teacherID, models.TransactionFilter{
		Type: models.TransactionCredit,
		Page: models.Page{Number: 2, Size: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, credits.Total)
	require.Len(t, credits.Items, 1)
	assert.Equal(t, int64(100), credits.Items[0].Amount)

	_, err = f.wallets.ListTransactions(context.Background(), teacherID, models.TransactionFilter{Type: "refund"})
	assert.ErrorIs(t, err, usecase.ErrInvalidStatus)

	empty, err := f.wallets.ListTransactions(context.Background(), uuid.New(), models.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, 0, empty.Total)
}

func TestGetCurrency(t *testing.T) {
	f := newFixture(t)

	jpy, err := f.wallets.GetCurrency(context.Background(), "JPY")
	require.NoError(t, err)
	assert.Equal(t, int32(0), jpy.Exponent)

	_, err = f.wallets.GetCurrency(context.Background(), "ZZZ")
	assert.ErrorIs(t, err, usecase.ErrCurrencyNotFound)
}
