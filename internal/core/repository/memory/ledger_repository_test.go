package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWallet(teacherID uuid.UUID) *models.Wallet {
	now := time.Now()
	return &models.Wallet{
		ID:           uuid.New(),
		TeacherID:    teacherID,
		CurrencyCode: "USD",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestFailedUnitLeavesNothingBehind(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	teacherID := uuid.New()
	boom := errors.New("boom")

	err := repo.WithTx(ctx, repository.ReadWrite, func(st repository.Store) error {
		inserted, err := st.InsertWalletIfAbsent(ctx, newWallet(teacherID))
		require.NoError(t, err)
		require.True(t, inserted)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		_, err := st.GetWalletByTeacher(ctx, teacherID)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	err := repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		_, err := st.InsertWalletIfAbsent(ctx, newWallet(uuid.New()))
		return err
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestWalletIsUniquePerTeacher(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	teacherID := uuid.New()
	first := newWallet(teacherID)

	err := repo.WithTx(ctx, repository.ReadWrite, func(st repository.Store) error {
		inserted, err := st.InsertWalletIfAbsent(ctx, first)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = st.InsertWalletIfAbsent(ctx, newWallet(teacherID))
		require.NoError(t, err)
		assert.False(t, inserted)

		w, err := st.LockWalletByTeacher(ctx, teacherID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, w.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestBalanceCannotGoNegative(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	w := newWallet(uuid.New())

	err := repo.WithTx(ctx, repository.ReadWrite, func(st repository.Store) error {
		if _, err := st.InsertWalletIfAbsent(ctx, w); err != nil {
			return err
		}
		return st.UpdateWalletBalance(ctx, w.ID, -1)
	})
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	repo := NewRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.WithTx(ctx, repository.ReadOnly, func(repository.Store) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestSeededCurrencies(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	err := repo.WithTx(ctx, repository.ReadOnly, func(st repository.Store) error {
		jpy, err := st.GetCurrencyByCode(ctx, "JPY")
		require.NoError(t, err)
		assert.Equal(t, int32(0), jpy.Exponent)

		_, err = st.GetCurrencyByCode(ctx, "XXX")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}
