package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usd = Currency{Code: "USD", Name: "US Dollar", Exponent: 2}
	jpy = Currency{Code: "JPY", Name: "Japanese Yen", Exponent: 0}
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name     string
		currency Currency
		input    string
		want     int64
		wantErr  bool
	}{
		{"whole dollars", usd, "12", 1200, false},
		{"cents", usd, "12.50", 1250, false},
		{"comma separator", usd, "12,5", 1250, false},
		{"padded", usd, " 0.01 ", 1, false},
		{"too precise", usd, "0.001", 0, true},
		{"yen", jpy, "500", 500, false},
		{"yen fraction", jpy, "500.5", 0, true},
		{"garbage", usd, "ten", 0, true},
		{"overflow", usd, "100000000000000000000", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.currency.ToMinorUnits(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "12.50", usd.Format(1250))
	assert.Equal(t, "0.05", usd.Format(5))
	assert.Equal(t, "-3.00", usd.Format(-300))
	assert.Equal(t, "500", jpy.Format(500))
}

func TestTransactionDelta(t *testing.T) {
	d, err := TransactionCredit.Delta(100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), d)

	d, err = TransactionDebit.Delta(100)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), d)

	_, err = TransactionType("refund").Delta(100)
	assert.Error(t, err)
	assert.False(t, TransactionType("refund").Valid())

	entry := WalletTransaction{Type: TransactionDebit, Amount: 40, BalanceBefore: 100, BalanceAfter: 60}
	assert.Equal(t, entry.BalanceAfter, entry.BalanceBefore+entry.Delta())
}

func TestEarningTransitions(t *testing.T) {
	assert.True(t, EarningPending.CanTransitionTo(EarningPaid))
	assert.True(t, EarningPending.CanTransitionTo(EarningCancelled))
	assert.False(t, EarningPending.CanTransitionTo(EarningPending))
	assert.False(t, EarningPaid.CanTransitionTo(EarningCancelled))
	assert.False(t, EarningCancelled.CanTransitionTo(EarningPaid))
	assert.False(t, EarningStatus("refunded").Valid())
}

func TestPayoutStatus(t *testing.T) {
	assert.False(t, PayoutPending.Terminal())
	assert.True(t, PayoutCompleted.Terminal())
	assert.True(t, PayoutRejected.Terminal())
	assert.True(t, PayoutApprove.Valid())
	assert.False(t, PayoutDecision("maybe").Valid())

	id := uuid.MustParse("7d9f3c1e-0000-4000-8000-000000000001")
	assert.Equal(t, "PAYOUT-7d9f3c1e-0000-4000-8000-000000000001", PayoutReference(id))
}

func TestPageNormalize(t *testing.T) {
	p := Page{}.Normalize()
	assert.Equal(t, Page{Number: 1, Size: DefaultPageSize}, p)
	assert.Equal(t, 0, p.Offset())

	p = Page{Number: 3, Size: 1000}.Normalize()
	assert.Equal(t, MaxPageSize, p.Size)
	assert.Equal(t, 2*MaxPageSize, p.Offset())
}

func TestDateRangeContains(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	r := DateRange{From: from, To: to}

	assert.True(t, r.Contains(from))
	assert.True(t, r.Contains(to.Add(-time.Nanosecond)))
	assert.False(t, r.Contains(to))
	assert.False(t, r.Contains(from.Add(-time.Second)))
	assert.True(t, DateRange{}.Contains(from))
}

func TestMetadataScanValue(t *testing.T) {
	v, err := Metadata(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)

	var m Metadata
	require.NoError(t, m.Scan([]byte(`{"payout_request_id":"abc","n":2}`)))
	assert.Equal(t, "abc", m["payout_request_id"])
	assert.Equal(t, float64(2), m["n"])

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))
	assert.Error(t, m.Scan("not json"))

	orig := Metadata{"a": "b"}
	clone := orig.Clone()
	clone["a"] = "c"
	assert.Equal(t, "b", orig["a"])
}
